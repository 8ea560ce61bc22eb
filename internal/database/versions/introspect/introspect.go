package introspect

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

type Column struct {
	Cid        int
	Name       string
	Type       string
	NotNull    int     `gorm:"column:notnull"`
	Default    *string `gorm:"column:dflt_value"`
	PrimaryKey int     `gorm:"column:pk"`
}

type ForeignKey struct {
	Id       int
	Seq      int
	Table    string
	From     string
	To       *string
	OnUpdate string `gorm:"column:on_update"`
	OnDelete string `gorm:"column:on_delete"`
	Match    string
}

// Columns returns the declared columns of a table in declaration order. An
// unknown table yields no columns and no error.
func Columns(db *gorm.DB, table string) ([]Column, error) {
	var cols []Column
	if err := db.Raw(fmt.Sprintf("PRAGMA table_info(%q)", table)).Scan(&cols).Error; err != nil {
		return nil, fmt.Errorf("error reading columns of %s: %w", table, err)
	}
	return cols, nil
}

func HasColumn(db *gorm.DB, table, column string) (bool, error) {
	cols, err := Columns(db, table)
	if err != nil {
		return false, err
	}
	for _, c := range cols {
		if strings.EqualFold(c.Name, column) {
			return true, nil
		}
	}
	return false, nil
}

// PrimaryKeyColumns returns the names of the primary key columns in key order.
func PrimaryKeyColumns(db *gorm.DB, table string) ([]string, error) {
	cols, err := Columns(db, table)
	if err != nil {
		return nil, err
	}

	ordered := make([]string, len(cols))
	n := 0
	for _, c := range cols {
		if c.PrimaryKey > 0 && c.PrimaryKey <= len(cols) {
			ordered[c.PrimaryKey-1] = c.Name
			n++
		}
	}
	return ordered[:n], nil
}

func ForeignKeys(db *gorm.DB, table string) ([]ForeignKey, error) {
	var fks []ForeignKey
	if err := db.Raw(fmt.Sprintf("PRAGMA foreign_key_list(%q)", table)).Scan(&fks).Error; err != nil {
		return nil, fmt.Errorf("error reading foreign keys of %s: %w", table, err)
	}
	return fks, nil
}

func References(db *gorm.DB, table, referenced string) (bool, error) {
	fks, err := ForeignKeys(db, table)
	if err != nil {
		return false, err
	}
	for _, fk := range fks {
		if strings.EqualFold(fk.Table, referenced) {
			return true, nil
		}
	}
	return false, nil
}

func HasTable(db *gorm.DB, table string) (bool, error) {
	var count int64
	if err := db.Raw("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&count).Error; err != nil {
		return false, fmt.Errorf("error checking for table %s: %w", table, err)
	}
	return count > 0, nil
}
