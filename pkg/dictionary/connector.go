package dictionary

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Connector returns the bigram cost of a word with right id rid followed by
// a word with left id lid. Id 0 is the sentence boundary.
type Connector interface {
	GetTransitionCost(rid, lid uint16) int
}

// DefaultTransitionCost is returned for ids outside a Matrix.
const DefaultTransitionCost = 3000

// ConstantConnector charges the same cost for every transition.
type ConstantConnector int

func (c ConstantConnector) GetTransitionCost(_, _ uint16) int { return int(c) }

// Matrix is a dense rid x lid cost table.
type Matrix struct {
	rows, cols int
	costs      []int16
}

// NewMatrix returns a rows x cols matrix with every cost zero.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{rows: rows, cols: cols, costs: make([]int16, rows*cols)}
}

func (m *Matrix) Size() (rows, cols int) { return m.rows, m.cols }

func (m *Matrix) GetTransitionCost(rid, lid uint16) int {
	r, l := int(rid), int(lid)
	if r >= m.rows || l >= m.cols {
		return DefaultTransitionCost
	}
	return int(m.costs[r*m.cols+l])
}

// Set stores one cost. Out of range ids are ignored.
func (m *Matrix) Set(rid, lid uint16, cost int) {
	r, l := int(rid), int(lid)
	if r >= m.rows || l >= m.cols {
		return
	}
	m.costs[r*m.cols+l] = int16(max(math.MinInt16, min(math.MaxInt16, cost)))
}

// ReadMatrix parses the text matrix format: a "rows cols" header line
// followed by "rid lid cost" lines. Unlisted cells cost zero.
func ReadMatrix(r io.Reader) (*Matrix, error) {
	scanner := bufio.NewScanner(r)
	var m *Matrix
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		nums, err := parseInts(strings.Fields(line))
		if err != nil {
			return nil, fmt.Errorf("matrix line %d: %w", lineNo, err)
		}
		if m == nil {
			if len(nums) != 2 || nums[0] <= 0 || nums[1] <= 0 || nums[0] > math.MaxUint16+1 || nums[1] > math.MaxUint16+1 {
				return nil, fmt.Errorf("matrix line %d: bad header %q", lineNo, line)
			}
			m = NewMatrix(nums[0], nums[1])
			continue
		}
		if len(nums) != 3 {
			return nil, fmt.Errorf("matrix line %d: expected 3 fields, got %d", lineNo, len(nums))
		}
		if nums[0] < 0 || nums[0] >= m.rows || nums[1] < 0 || nums[1] >= m.cols {
			return nil, fmt.Errorf("matrix line %d: id out of range", lineNo)
		}
		m.Set(uint16(nums[0]), uint16(nums[1]), nums[2])
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("matrix has no header")
	}
	return m, nil
}

// LoadMatrix reads a matrix file.
func LoadMatrix(path string) (*Matrix, error) {
	if err := ValidateFileFormat(path, FormatMatrix); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := ReadMatrix(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func parseInts(fields []string) ([]int, error) {
	out := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
