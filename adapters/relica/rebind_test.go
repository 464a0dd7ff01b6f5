package relica

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coregx/subhub"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		name       string
		driverName string
		query      string
		want       string
	}{
		{
			name:       "postgres numbers placeholders",
			driverName: "postgres",
			query:      "UPDATE t SET a = ? WHERE b = ? AND c IN (?,?)",
			want:       "UPDATE t SET a = $1 WHERE b = $2 AND c IN ($3,$4)",
		},
		{
			name:       "mysql untouched",
			driverName: "mysql",
			query:      "SELECT * FROM t WHERE a = ?",
			want:       "SELECT * FROM t WHERE a = ?",
		},
		{
			name:       "sqlite untouched",
			driverName: "sqlite3",
			query:      "SELECT * FROM t WHERE a = ?",
			want:       "SELECT * FROM t WHERE a = ?",
		},
		{
			name:       "no placeholders",
			driverName: "postgres",
			query:      "SELECT COUNT(*) FROM t",
			want:       "SELECT COUNT(*) FROM t",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rebind(tt.driverName, tt.query))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?,?,?", placeholders(3))
}

func TestAnySlice(t *testing.T) {
	got := anySlice([]string{"a", "b"})
	assert.Equal(t, []interface{}{"a", "b"}, got)
	assert.Empty(t, anySlice(nil))
}

func TestMapInsertError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{
			name:  "sub key index",
			err:   errors.New(`pq: duplicate key value violates unique constraint "uq_sub_key"`),
			check: subhub.IsKeyCollision,
		},
		{
			name:  "exclusive index",
			err:   errors.New("UNIQUE constraint failed: index 'uq_exclusive'"),
			check: subhub.IsAlreadySubscribed,
		},
		{
			name: "anything else",
			err:  errors.New("connection reset by peer"),
			check: func(err error) bool {
				var shErr *subhub.Error
				return errors.As(err, &shErr) && shErr.Code == subhub.ErrCodePersistence
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := mapInsertError(tt.err)
			assert.True(t, tt.check(mapped))
			assert.ErrorIs(t, mapped, tt.err)
		})
	}
}
