package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/appcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	CorruptEvery    uint64
	UnresolvedEvery uint64
	RejectedEvery   uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	corruptCtr    atomic.Uint64
	unresolvedCtr atomic.Uint64
	rejectedCtr   atomic.Uint64
}

var _ appcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) NamespaceUnresolved(op, namespaceRawKey string) {
	if h.l == nil || !sample(h.opts.UnresolvedEvery, &h.unresolvedCtr) {
		return
	}
	h.l.Debug("appcache.namespace_unresolved",
		"op", op,
		"namespace", h.redact(namespaceRawKey))
}

func (h *Hooks) CorruptEntry(rawKey, reason string) {
	if h.l == nil || !sample(h.opts.CorruptEvery, &h.corruptCtr) {
		return
	}
	h.l.Warn("appcache.corrupt_entry",
		"key", h.redact(rawKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(rawKey string) {
	if h.l == nil || !sample(h.opts.RejectedEvery, &h.rejectedCtr) {
		return
	}
	h.l.Info("appcache.provider_set_rejected",
		"key", h.redact(rawKey))
}

func (h *Hooks) ProviderError(op, rawKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("appcache.provider_error",
		"op", op,
		"key", h.redact(rawKey),
		"err", err)
}
