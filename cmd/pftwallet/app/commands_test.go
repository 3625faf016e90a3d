// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postfiatorg/postfiat-wallet/pkg/versions"
)

func TestVersionCmd_JSON(t *testing.T) {
	t.Parallel()

	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--json"})
	require.NoError(t, cmd.Execute())

	var info versions.VersionInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestValidateCmd(t *testing.T) { //nolint:paralleltest // Uses the global viper config key
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("server:\n  address: 127.0.0.1:9999\n"), 0600))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("nodes:\n  task_node: nope\n"), 0600))

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)

	root.SetArgs([]string{"validate", "--config", good})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "127.0.0.1:9999")

	root.SetArgs([]string{"validate", "--config", bad})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nodes.task_node")
}
