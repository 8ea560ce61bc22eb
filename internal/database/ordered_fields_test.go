package database_test

import (
	"encoding/json"
	"testing"

	"docsift/internal/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedFieldsKeepsColumnOrder(t *testing.T) {
	fields := database.NewOrderedFields([]string{"zeta", "alpha", "Mid"}, []string{"1", "2"})

	assert.Equal(t, []string{"zeta", "alpha", "Mid"}, fields.Keys())

	value, ok := fields.Get("Mid")
	assert.True(t, ok)
	assert.Equal(t, "", value)

	_, ok = fields.Get("missing")
	assert.False(t, ok)

	data, err := json.Marshal(fields)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":"1","alpha":"2","Mid":""}`, string(data))
}

func TestOrderedFieldsDoesNotEscapeHTML(t *testing.T) {
	fields := database.NewOrderedFields([]string{"a&b"}, []string{"<x> & \"y\""})

	data, err := fields.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"a&b":"<x> & \"y\""}`, string(data))
}

func TestOrderedFieldsUnmarshal(t *testing.T) {
	var fields database.OrderedFields
	require.NoError(t, json.Unmarshal([]byte(`{"b":"x","a":12.50,"c":null,"d":true}`), &fields))

	assert.Equal(t, []string{"b", "a", "c", "d"}, fields.Keys())

	a, _ := fields.Get("a")
	assert.Equal(t, "12.50", a)
	c, ok := fields.Get("c")
	assert.True(t, ok)
	assert.Equal(t, "", c)
	d, _ := fields.Get("d")
	assert.Equal(t, "true", d)

	assert.Error(t, json.Unmarshal([]byte(`["not","an","object"]`), &fields))
}

func TestOrderedFieldsRoundTripThroughDatabase(t *testing.T) {
	db := openDB(t)
	require.NoError(t, database.EnsureSchema(db))

	headers := []string{"Title", "Year", "Notes, misc"}
	row := database.DatasetRow{
		Id:        uuid.New(),
		DatasetId: uuid.New(),
		RowIndex:  0,
		Data:      database.NewOrderedFields(headers, []string{"Ünïcode \"quoted\"", "2020", "a,b\nc"}),
	}
	require.NoError(t, db.Create(&row).Error)

	var stored database.DatasetRow
	require.NoError(t, db.First(&stored, "id = ?", row.Id).Error)
	assert.Equal(t, headers, stored.Data.Keys())

	title, _ := stored.Data.Get("Title")
	assert.Equal(t, "Ünïcode \"quoted\"", title)
	notes, _ := stored.Data.Get("Notes, misc")
	assert.Equal(t, "a,b\nc", notes)
}
