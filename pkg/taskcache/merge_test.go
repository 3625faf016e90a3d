// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package taskcache

import (
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postfiatorg/postfiat-wallet/pkg/errors"
	"github.com/postfiatorg/postfiat-wallet/pkg/task"
)

type streamItem struct {
	seq  int64
	body string
	err  error
}

func stream(items ...streamItem) iter.Seq2[*task.Message, error] {
	return func(yield func(*task.Message, error) bool) {
		for _, it := range items {
			if it.err != nil {
				yield(nil, it.err)
				return
			}
			if !yield(&task.Message{LedgerSeq: it.seq, Body: it.body}, nil) {
				return
			}
		}
	}
}

func seqs(seq ...int64) []streamItem {
	items := make([]streamItem, 0, len(seq))
	for _, s := range seq {
		items = append(items, streamItem{seq: s})
	}
	return items
}

func collect(t *testing.T, merged iter.Seq2[*task.Message, error]) ([]*task.Message, error) {
	t.Helper()
	var out []*task.Message
	for msg, err := range merged {
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func TestMerge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		streams [][]streamItem
		want    []int64
	}{
		{name: "no streams"},
		{name: "single stream", streams: [][]streamItem{seqs(1, 2, 3)}, want: []int64{1, 2, 3}},
		{name: "interleaved", streams: [][]streamItem{seqs(1, 3, 5), seqs(2, 4, 6)}, want: []int64{1, 2, 3, 4, 5, 6}},
		{name: "one empty", streams: [][]streamItem{nil, seqs(7, 9)}, want: []int64{7, 9}},
		{name: "uneven", streams: [][]streamItem{seqs(10), seqs(1, 2, 3, 11), seqs(4)}, want: []int64{1, 2, 3, 4, 10, 11}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			streams := make([]iter.Seq2[*task.Message, error], 0, len(tt.streams))
			for _, items := range tt.streams {
				streams = append(streams, stream(items...))
			}
			out, err := collect(t, Merge(streams...))
			require.NoError(t, err)

			var got []int64
			for _, msg := range out {
				got = append(got, msg.LedgerSeq)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMerge_TiesKeepStreamOrder(t *testing.T) {
	t.Parallel()

	out, err := collect(t, Merge(
		stream(streamItem{seq: 5, body: "tasks"}),
		stream(streamItem{seq: 5, body: "memos"}),
	))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "tasks", out[0].Body)
	assert.Equal(t, "memos", out[1].Body)
}

func TestMerge_ErrorEndsStream(t *testing.T) {
	t.Parallel()

	boom := errors.NewSourceUnavailableError("boom", nil)
	out, err := collect(t, Merge(
		stream(streamItem{seq: 1}, streamItem{seq: 4}),
		stream(streamItem{seq: 2}, streamItem{err: boom}, streamItem{seq: 3}),
	))
	require.ErrorIs(t, err, boom)

	var got []int64
	for _, msg := range out {
		got = append(got, msg.LedgerSeq)
	}
	assert.Equal(t, []int64{1, 2}, got)
}

func TestMerge_EarlyStopReleasesStreams(t *testing.T) {
	t.Parallel()

	stopped := 0
	tracked := func(items ...streamItem) iter.Seq2[*task.Message, error] {
		inner := stream(items...)
		return func(yield func(*task.Message, error) bool) {
			defer func() { stopped++ }()
			inner(yield)
		}
	}

	for msg, err := range Merge(tracked(seqs(1, 3)...), tracked(seqs(2, 4)...)) {
		require.NoError(t, err)
		if msg.LedgerSeq == 2 {
			break
		}
	}
	assert.Equal(t, 2, stopped)
}
