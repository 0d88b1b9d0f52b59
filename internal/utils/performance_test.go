package utils

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestTimerLogsOperation(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	d := NewTimer("solve", log).StopWithFields(map[string]interface{}{"groups": 12})

	assert.GreaterOrEqual(t, int64(d), int64(0))
	assert.Contains(t, buf.String(), `"operation":"solve"`)
	assert.Contains(t, buf.String(), `"groups":12`)
}

func TestOperationTimer(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	stop := OperationTimer("strategy", log)
	stop()

	assert.Contains(t, buf.String(), `"operation":"strategy"`)
}

func TestMeasureQuery(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	MeasureQuery("load_institutions", log)(42)

	assert.Contains(t, buf.String(), `"query":"load_institutions"`)
	assert.Contains(t, buf.String(), `"rows":42`)
}
