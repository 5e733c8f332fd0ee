package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// multipartThreshold is the payload size above which archives are uploaded
// with the multipart manager.
const multipartThreshold = minPartSize

// Archiver implements domain.SessionArchiver. Each reset session becomes one
// JSONL object of orders at <prefix>/YYYY/MM/DD/<uuid>.jsonl.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	prefix string
	now    func() time.Time
}

// NewArchiver creates an Archiver. reader may be nil when archives are only
// written.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, prefix string) *Archiver {
	if prefix == "" {
		prefix = "sessions"
	}
	return &Archiver{
		writer: writer,
		reader: reader,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ArchiveSession uploads orders and returns the object path.
func (a *Archiver) ArchiveSession(ctx context.Context, orders []domain.Order) (string, error) {
	buf, err := marshalJSONL(orders)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive session marshal: %w", err)
	}

	key := sessionPath(a.prefix, a.now(), uuid.NewString())
	if int64(len(buf)) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, key, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, key, bytes.NewReader(buf), archiveContentType)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive session upload: %w", err)
	}
	return key, nil
}

// ListSessions returns archived sessions newest first.
func (a *Archiver) ListSessions(ctx context.Context) ([]domain.BlobInfo, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: archive reader not configured")
	}
	infos, err := a.reader.List(ctx, a.prefix+"/")
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastModified.After(infos[j].LastModified)
	})
	return infos, nil
}

// LoadSession reads back the orders of one archived session.
func (a *Archiver) LoadSession(ctx context.Context, key string) ([]domain.Order, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: archive reader not configured")
	}
	body, err := a.reader.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var orders []domain.Order
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var o domain.Order
		if err := json.Unmarshal(line, &o); err != nil {
			return nil, fmt.Errorf("s3blob: decode %s line %d: %w", key, len(orders)+1, err)
		}
		orders = append(orders, o)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("s3blob: read %s: %w", key, err)
	}
	return orders, nil
}

// sessionPath builds the object key for an archived session, partitioned by
// day.
//
//	sessions/2024/01/02/9b2c....jsonl
func sessionPath(prefix string, at time.Time, id string) string {
	return path.Join(prefix, at.Format("2006/01/02"), id+".jsonl")
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.SessionArchiver = (*Archiver)(nil)
