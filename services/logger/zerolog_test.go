package logsvc

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

func TestZeroLogger(t *testing.T) {
	var buf bytes.Buffer
	conf := core.NewTestConfig()
	logger := NewZeroLogger(&buf, conf)

	usr := user.User{ID: "42", Username: "jdoe"}
	logger.Error("grading failed", errors.New("boom"), map[string]interface{}{"course_id": "c1"}, usr)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "grading failed", entry["message"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "c1", entry["course_id"])
	assert.Equal(t, "42", entry["user_id"])
	assert.Equal(t, "jdoe", entry["username"])
	assert.Equal(t, conf.AppName, entry["app"])
}

func TestZeroLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZeroLogger(&buf, core.NewTestConfig())

	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestZeroLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZeroLogger(&buf, core.NewTestConfig()).Component("db")

	logger.Warn("slow query")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "db", entry["component"])
	assert.Equal(t, "warn", entry["level"])
}
