package vm

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/chazu/neon/number"

	_ "modernc.org/sqlite"
)

// ---------------------------------------------------------------------------
// SQLite primitives
// ---------------------------------------------------------------------------

const sqliteType = "sqlite.Database"

type sqliteHandle struct {
	path string
	db   *sql.DB
}

// sqlArg converts a VM value into a driver argument.
func sqlArg(v Value) (any, error) {
	switch v.Kind() {
	case KindNothing:
		return nil, nil
	case KindBoolean:
		return v.Boolean(), nil
	case KindNumber:
		n := v.Number()
		if n.IsInteger() {
			if i, err := n.ToInt64(); err == nil {
				return i, nil
			}
		}
		return n.ToFloat64(), nil
	case KindString:
		return v.Str(), nil
	case KindBytes:
		return v.Bytes(), nil
	}
	return nil, Raise(ExcInvalidValue, fmt.Sprintf("cannot bind %s to a statement", v.Kind()))
}

// sqlValue converts a scanned column into a VM value.
func sqlValue(x any) Value {
	switch x := x.(type) {
	case nil:
		return Nothing
	case int64:
		return NewInt(x)
	case float64:
		return NewNumber(number.FromFloat64(x))
	case bool:
		return NewBoolean(x)
	case []byte:
		return NewBytes(x)
	case string:
		return NewString(x)
	}
	return NewString(fmt.Sprint(x))
}

func sqliteQuery(db *sql.DB, query string, args []any) ([]Value, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Value
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		d := NewDict()
		for i, c := range cols {
			d.Set(c, sqlValue(raw[i]))
		}
		out = append(out, NewDictionary(d))
	}
	return out, rows.Err()
}

func registerSqlitePrimitives(t *BuiltinTable) {
	// open: path - Database handle; ":memory:" opens a private database
	t.add("sqlite$open", 1, 1, func(ex *Executor) error {
		path := ex.stack.PopString()
		db, err := sql.Open("sqlite", path)
		if err == nil {
			err = db.Ping()
		}
		if err != nil {
			if db != nil {
				db.Close()
			}
			return Raise(ExcSQL, path+": "+err.Error())
		}
		// A pool would give each connection its own ":memory:" database.
		db.SetMaxOpenConns(1)
		log.Debugf("sqlite: opened %s", path)
		o := NewObjectHandle(sqliteType, &sqliteHandle{path: path, db: db},
			func(h any) {
				if err := h.(*sqliteHandle).db.Close(); err != nil {
					log.Warningf("sqlite: closing %s: %v", h.(*sqliteHandle).path, err)
				}
			},
			func(h any) string { return "<sqlite.Database " + h.(*sqliteHandle).path + ">" })
		ex.stack.Push(NewObject(o))
		return nil
	})

	// exec: db, sql, params - (rows, ok); rows is an Array of Dictionaries
	// keyed by column name, ok is TRUE when at least one row came back
	t.add("sqlite$exec", 3, 2, func(ex *Executor) error {
		params := ex.stack.Pop()
		defer params.Release()
		query := ex.stack.PopString()
		o, v, err := popObject(ex.stack, sqliteType)
		if err != nil {
			return err
		}
		defer v.Release()

		var args []any
		if params.Kind() == KindArray {
			for _, p := range params.Array() {
				a, err := sqlArg(p)
				if err != nil {
					return err
				}
				args = append(args, a)
			}
		}

		h := o.Handle.(*sqliteHandle)
		rows, err := sqliteQuery(h.db, strings.TrimSpace(query), args)
		if err != nil {
			return Raise(ExcSQL, err.Error())
		}
		ex.stack.Push(NewArray(rows))
		ex.stack.Push(NewBoolean(len(rows) > 0))
		return nil
	})

	t.add("sqlite$close", 1, 0, func(ex *Executor) error {
		o, v, err := popObject(ex.stack, sqliteType)
		if err != nil {
			return err
		}
		o.Close()
		v.Release()
		return nil
	})
}
