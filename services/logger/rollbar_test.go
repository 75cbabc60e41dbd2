package logsvc

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/user"
)

func entries(t *testing.T, out *bytes.Buffer) []map[string]interface{} {
	var res []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		entry := make(map[string]interface{})
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		res = append(res, entry)
	}
	return res
}

func TestRollbarLogger(t *testing.T) {
	tests := []struct {
		name       string
		debug      bool
		log        func(l *RollbarLogger)
		wantLevel  string
		wantMsg    string
		wantFields map[string]interface{}
		wantNone   bool
	}{
		{
			name:      "info",
			log:       func(l *RollbarLogger) { l.Info("server started") },
			wantLevel: "info",
			wantMsg:   "server started",
		},
		{
			name:      "error with extras",
			log:       func(l *RollbarLogger) { l.Error("awarding", errors.New("boom"), map[string]interface{}{"student_id": "s1"}) },
			wantLevel: "error",
			wantMsg:   "awarding",
			wantFields: map[string]interface{}{
				"error":      "boom",
				"student_id": "s1",
			},
		},
		{
			name: "actor",
			log: func(l *RollbarLogger) {
				l.Warn("denied", user.Actor{ID: "u1", Role: user.RoleTeacher})
			},
			wantLevel:  "warning",
			wantMsg:    "denied",
			wantFields: map[string]interface{}{"actor_id": "u1", "actor_role": "teacher"},
		},
		{
			name:     "debug is hidden by default",
			log:      func(l *RollbarLogger) { l.Debug("details") },
			wantNone: true,
		},
		{
			name:      "debug mode",
			debug:     true,
			log:       func(l *RollbarLogger) { l.Debug("details") },
			wantLevel: "debug",
			wantMsg:   "details",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			l := NewRollbarLogger(&out, &core.Config{Env: "TEST", TestMode: true, Debug: tt.debug})
			tt.log(l)

			logged := entries(t, &out)
			if tt.wantNone {
				assert.Empty(t, logged)
				return
			}
			require.Len(t, logged, 1)
			assert.Equal(t, tt.wantLevel, logged[0]["level"])
			assert.Equal(t, tt.wantMsg, logged[0]["msg"])
			for k, v := range tt.wantFields {
				assert.Equal(t, v, logged[0][k], k)
			}
		})
	}
}
