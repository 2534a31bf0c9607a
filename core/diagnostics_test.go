package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnostics_EvictsOldest(t *testing.T) {
	d := NewDiagnostics(3, nil)
	for i := 0; i < 5; i++ {
		d.Error("store", "write failed", errors.New("disk full"), map[string]interface{}{"n": i})
	}

	require.Equal(t, 3, d.Len())
	list := d.List()
	assert.Equal(t, 5, list[0].ID, "newest first")
	assert.Equal(t, 3, list[2].ID)
	assert.Nil(t, d.Get(1))
	require.NotNil(t, d.Get(4))
	assert.Equal(t, "disk full", d.Get(4).Detail)
	assert.JSONEq(t, `{"n":3}`, d.Get(4).Context)
	assert.NotEmpty(t, d.Get(4).Stack)
}

func TestDiagnostics_Clear(t *testing.T) {
	d := NewDiagnostics(0, nil)
	d.Warn("n8n", "upstream slow", nil)
	require.Equal(t, 1, d.Len())
	assert.Equal(t, "WARN", d.List()[0].Level)
	assert.Empty(t, d.List()[0].Detail)

	d.Clear()
	assert.Equal(t, 0, d.Len())

	d.Error("x", "y", nil, nil)
	assert.Equal(t, 1, d.List()[0].ID)
}

func TestDiagnostics_NilSafe(t *testing.T) {
	var d *Diagnostics
	assert.NotPanics(t, func() { d.Error("x", "y", nil, nil) })
}
