// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package version

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfo_String(t *testing.T) {
	info := Info{Version: "v1.0.0", GitCommit: "abc1234", BuildTime: "2026-01-30T12:00:00Z"}
	assert.Equal(t, "v1.0.0 (commit: abc1234, built: 2026-01-30T12:00:00Z)", info.String())
}

func TestInfo_ZeroValue(t *testing.T) {
	var info Info
	assert.Equal(t, "dev (commit: unknown, built: unknown)", info.String())
}

func TestInfo_JSON(t *testing.T) {
	data, err := json.Marshal(Info{Version: "v1.0.0", GitCommit: "abc1234"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"v1.0.0","git_commit":"abc1234","build_time":""}`, string(data))
}
