package validation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"time"

	"github.com/pgrekey/pgrekey/internal/source"
)

// nullMarker feeds the digest when a value is NULL, so a NULL and an
// empty string hash differently.
const nullMarker = "\x00null\x00"

// ColumnChecksums streams a table in primary key order and folds the
// canonical text of every value into one running SHA-256 per column.
// Two sides holding identical content in identical key order produce
// identical hex digests.
func (v *Validator) ColumnChecksums(ctx context.Context, r source.Reader, table, pkCol string, columns []string) (map[string]string, error) {
	batch := v.BatchSize
	if batch <= 0 {
		batch = 1000
	}

	hashes := make(map[string]hash.Hash, len(columns))
	for _, c := range columns {
		hashes[c] = sha256.New()
	}

	var after any
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := r.FetchPage(ctx, table, pkCol, after, batch)
		if err != nil {
			return nil, fmt.Errorf("reading %s for checksums: %w", table, err)
		}
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			for _, c := range columns {
				h := hashes[c]
				h.Write([]byte(canonicalText(row[c])))
				h.Write([]byte{0})
			}
		}
		if len(rows) < batch {
			break
		}
		after = rows[len(rows)-1][pkCol]
	}

	sums := make(map[string]string, len(columns))
	for c, h := range hashes {
		sums[c] = hex.EncodeToString(h.Sum(nil))
	}
	return sums, nil
}

// canonicalText renders a value in a form stable across driver scan
// representations: the same content digests identically whether the
// driver returned it as int2 or int8, or as a timestamp in another
// zone.
func canonicalText(v any) string {
	switch x := v.(type) {
	case nil:
		return nullMarker
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case bool:
		if x {
			return "true"
		}
		return "false"
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []byte:
		return hex.EncodeToString(x)
	case string:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}
