package graphs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Matrix is a dense, row-major float32 matrix.
//
// It is used both for node features (one row per node) and for the adjacency operators
// fed to each graph convolution layer (one row per output node, one column per input node).
type Matrix struct {
	Rows, Cols int
	Data       []float32
}

// NewMatrix returns a zero-filled rows x cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// NewMatrixFromRows creates a matrix copying the given rows. All rows must have the same length.
func NewMatrixFromRows(rows [][]float32) (*Matrix, error) {
	if len(rows) == 0 {
		return NewMatrix(0, 0), nil
	}
	m := NewMatrix(len(rows), len(rows[0]))
	for ii, row := range rows {
		if len(row) != m.Cols {
			return nil, errors.Errorf("row %d has %d columns, expected %d", ii, len(row), m.Cols)
		}
		copy(m.Row(ii), row)
	}
	return m, nil
}

// Identity returns the n x n identity matrix.
func Identity(n int) *Matrix {
	m := NewMatrix(n, n)
	for ii := range n {
		m.Set(ii, ii, 1)
	}
	return m
}

// At returns the element at row, col.
func (m *Matrix) At(row, col int) float32 {
	return m.Data[row*m.Cols+col]
}

// Set the element at row, col.
func (m *Matrix) Set(row, col int, value float32) {
	m.Data[row*m.Cols+col] = value
}

// Row returns a slice pointing to the row's data: changes to it are reflected in the matrix.
func (m *Matrix) Row(row int) []float32 {
	return m.Data[row*m.Cols : (row+1)*m.Cols]
}

// SelectRows returns a new matrix with copies of the given rows, in the given order.
func (m *Matrix) SelectRows(rows []int32) *Matrix {
	selected := NewMatrix(len(rows), m.Cols)
	for ii, row := range rows {
		copy(selected.Row(ii), m.Row(int(row)))
	}
	return selected
}

// ToRows returns a copy of the matrix as a slice of rows.
func (m *Matrix) ToRows() [][]float32 {
	rows := make([][]float32, m.Rows)
	for ii := range rows {
		rows[ii] = make([]float32, m.Cols)
		copy(rows[ii], m.Row(ii))
	}
	return rows
}

// String implements fmt.Stringer.
func (m *Matrix) String() string {
	if m == nil {
		return "Matrix(nil)"
	}
	return fmt.Sprintf("Matrix(%d x %d)", m.Rows, m.Cols)
}
