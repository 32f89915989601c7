// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package logging_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/siderolabs/kleaf/pkg/logging"
)

func messages(logs *observer.ObservedLogs) []string {
	var result []string

	for _, entry := range logs.TakeAll() {
		result = append(result, entry.Message)
	}

	return result
}

func TestWriteLines(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)

	logging.WriteLines(zap.New(core), zapcore.InfoLevel, "Creating boot.img\n\n  \n  Creating boot-lz4.img  \npartial")

	assert.Equal(t, []string{"Creating boot.img", "Creating boot-lz4.img", "partial"}, messages(logs))
}

func TestWriteLinesLevel(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)

	logging.WriteLines(zap.New(core), zapcore.DebugLevel, "hidden\n")

	assert.Empty(t, messages(logs))
}

func TestNew(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := logging.New(&buf, false, logging.WithoutTimestamp())
	logger.Debug("debug message")
	logger.Info("info message", logging.Component("hermetic"), logging.Rule("hermetic-tools"))

	assert.NotContains(t, buf.String(), "debug message")
	assert.Contains(t, buf.String(), "info message")
	assert.Contains(t, buf.String(), `"component": "hermetic"`)

	buf.Reset()

	logger = logging.New(&buf, true, logging.WithoutTimestamp())
	logger.Debug("debug message")

	assert.Contains(t, buf.String(), "debug message")
}
