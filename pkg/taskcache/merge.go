// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package taskcache

import (
	"iter"

	"github.com/postfiatorg/postfiat-wallet/pkg/task"
)

// Merge lazily combines message streams that are each ordered by ledger
// sequence into one ordered stream. Messages with equal sequence numbers
// come out in stream order. The first error from any stream is yielded and
// ends the merged stream.
func Merge(streams ...iter.Seq2[*task.Message, error]) iter.Seq2[*task.Message, error] {
	return func(yield func(*task.Message, error) bool) {
		type head struct {
			next func() (*task.Message, error, bool)
			msg  *task.Message
			live bool
		}

		heads := make([]head, len(streams))
		advance := func(i int) error {
			msg, err, ok := heads[i].next()
			if !ok {
				heads[i].live, heads[i].msg = false, nil
				return nil
			}
			if err != nil {
				return err
			}
			heads[i].live, heads[i].msg = true, msg
			return nil
		}

		for i, stream := range streams {
			next, stop := iter.Pull2(stream)
			defer stop()
			heads[i].next = next
			if err := advance(i); err != nil {
				yield(nil, err)
				return
			}
		}

		for {
			pick := -1
			for i := range heads {
				if !heads[i].live {
					continue
				}
				if pick < 0 || heads[i].msg.LedgerSeq < heads[pick].msg.LedgerSeq {
					pick = i
				}
			}
			if pick < 0 {
				return
			}
			if !yield(heads[pick].msg, nil) {
				return
			}
			if err := advance(pick); err != nil {
				yield(nil, err)
				return
			}
		}
	}
}
