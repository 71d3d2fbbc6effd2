package session

import (
	"bytes"
	"errors"
	"io"

	"github.com/grafana/git-receive-pack/cancel"
	"github.com/grafana/git-receive-pack/errs"
	"github.com/grafana/git-receive-pack/oid"
	"github.com/grafana/git-receive-pack/quarantine"
)

// PackObject is one decoded entry from an incoming pack, offered to the
// quarantine's unpack path.
type PackObject struct {
	ID         oid.OID
	Compressed io.Reader
}

// PackObjectEnumerator walks the objects of an incoming pack one at a
// time. Decoding the pack's delta stream into individual objects is
// outside this module's scope (the object database is an external
// collaborator); this is the seam a real decoder plugs into.
// A nil enumerator means the caller has no per-object decoder available,
// in which case IngestPack always falls back to streaming the whole pack
// for external indexing.
type PackObjectEnumerator interface {
	Next() (PackObject, bool, error)
}

// PackInput is the pack half of an incoming push: its 12-byte header,
// read separately so the object count can steer strategy selection
// before the rest of the stream is consumed, the remaining bytes, and an
// optional object-level decoder.
type PackInput struct {
	Header  [quarantine.PackHeaderSize]byte
	Body    io.Reader
	Objects PackObjectEnumerator
}

// IngestPack selects an ingestion strategy from the pack header's object
// count against unpackLimit and writes the pack's contents into q
// accordingly: StrategyUnpack inflates each object via objects into a
// loose file, StrategyIndex (or StrategyUnpack with no enumerator wired)
// streams the pack bytes verbatim for an external indexer. flag is
// checked once per enumerated object (StrategyUnpack) or every MiB
// (StrategyIndex, inside quarantine.StreamPack) so a cancellation
// mid-ingest is noticed promptly; flag == nil is treated as cancel.Noop.
func IngestPack(q *quarantine.Quarantine, pack PackInput, unpackLimit uint32, flag cancel.Flag) (quarantine.Strategy, error) {
	if flag == nil {
		flag = cancel.Noop
	}

	_, count, err := quarantine.ParsePackHeader(pack.Header[:])
	if err != nil {
		return 0, errs.New(errs.KindPackCorrupt, "parsing pack header", err)
	}

	strategy := quarantine.SelectStrategy(count, unpackLimit)

	if strategy == quarantine.StrategyUnpack && pack.Objects != nil {
		for {
			if flag.IsRequested() {
				return strategy, errs.New(errs.KindCancelled, "ingesting pack", cancel.ErrCancelled)
			}
			obj, ok, err := pack.Objects.Next()
			if err != nil {
				return strategy, errs.New(errs.KindPackCorrupt, "enumerating pack objects", err)
			}
			if !ok {
				break
			}
			if err := q.WriteLooseObject(obj.ID, obj.Compressed); err != nil {
				return strategy, errs.New(errs.KindIO, "writing loose object", err)
			}
		}
		return strategy, nil
	}

	full := io.MultiReader(bytes.NewReader(pack.Header[:]), pack.Body)
	if _, err := q.StreamPack(full, flag); err != nil {
		if errors.Is(err, cancel.ErrCancelled) {
			return strategy, errs.New(errs.KindCancelled, "streaming pack", err)
		}
		return strategy, errs.New(errs.KindIO, "streaming pack", err)
	}
	return quarantine.StrategyIndex, nil
}
