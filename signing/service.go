// Package signing drives a complete signing operation: it loads the key,
// opens the source document, places the widget, reserves and fills the
// signature and persists the result through the store collaborators.
package signing

import (
	"context"
	"crypto"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/georgepadayatti/pdfsign/internal/logger"
	"github.com/georgepadayatti/pdfsign/keys"
	"github.com/georgepadayatti/pdfsign/metadata"
	"github.com/georgepadayatti/pdfsign/observability"
	"github.com/georgepadayatti/pdfsign/pdf/generic"
	"github.com/georgepadayatti/pdfsign/pdf/reader"
	"github.com/georgepadayatti/pdfsign/sign/signers"
	"github.com/georgepadayatti/pdfsign/stamp"
	"github.com/georgepadayatti/pdfsign/store"
)

// Options tunes every operation of a service.
type Options struct {
	// SignatureSize is the minimum number of bytes reserved for the CMS
	// object. The reservation grows to fit the signer's certificate chain.
	SignatureSize int
	Hash          crypto.Hash
	// WorkDir holds the per-operation workspaces; empty is os.TempDir().
	WorkDir string
	Style   *stamp.StampStyle
	// Application and Version go into the signature build properties.
	Application string
	Version     string
}

// Service signs documents held by its stores. It keeps no per-operation
// state, so one service may serve concurrent calls.
type Service struct {
	Content      store.ContentStore
	Credentials  store.CredentialSource
	Destinations store.DestinationResolver
	// Metadata is optional.
	Metadata metadata.Sink
	Clock    clockwork.Clock
	// Metrics is optional.
	Metrics *observability.Metrics
	Tracer  trace.Tracer
	Options Options
}

// NewService creates a service backed by one store.
func NewService(backend store.Backend, opts Options) *Service {
	return &Service{
		Content:      backend,
		Credentials:  backend,
		Destinations: backend,
		Clock:        clockwork.NewRealClock(),
		Tracer:       observability.Tracer(),
		Options:      opts,
	}
}

// Result describes a persisted signed document.
type Result struct {
	OperationID string
	Handle      store.Handle
	Destination DestinationMode
	FieldName   string
	// Page is 1-based.
	Page    int
	Visible bool
	// Rect is the widget rectangle as the page is displayed, before /Rotate
	// is undone.
	Rect       generic.Rectangle
	ByteRanges signers.ByteRanges
	SignedBy   string
	SignedAt   time.Time
	Size       int
}

// operation is the state of one Sign call.
type operation struct {
	svc   *Service
	req   Request
	id    string
	log   *slog.Logger
	state State
	next  State

	dest      Destination
	workspace string
	creds     []byte
	material  *keys.KeyMaterial
	signedBy  string
	signedAt  time.Time

	doc        *reader.PdfFileReader
	page       int
	appearance *stamp.SignatureAppearance
	signer     *signers.SimpleSigner
	session    *signers.SignatureSession
	ranges     signers.ByteRanges
	draft      []byte
	digest     []byte
	signature  []byte
	output     []byte
	handle     store.Handle
}

// Sign runs one signing operation. On failure the returned error is a
// *Error and nothing has been persisted.
func (s *Service) Sign(ctx context.Context, req Request) (result *Result, err error) {
	op := &operation{
		svc:   s,
		req:   req,
		id:    uuid.NewString(),
		state: StateInit,
	}
	start := s.clock().Now()

	ctx, span := s.tracer().Start(ctx, "pdfsign.Sign", trace.WithAttributes(
		attribute.String("pdfsign.operation_id", op.id),
		attribute.String("pdfsign.source", string(req.Source)),
	))
	op.log = logger.FromContext(ctx).With("operation", op.id, "source", string(req.Source))
	ctx = logger.WithContext(ctx, op.log)

	defer func() {
		if r := recover(); r != nil {
			err = newError(op.next, fmt.Errorf("%w: %v", ErrPanic, r))
			result = nil
		}
		op.cleanup()

		if err != nil {
			op.state = StateFailed
			serr := newError(op.next, err)
			err = serr
			op.log.Error("Signing failed", "state", serr.State.String(), "kind", string(serr.Kind), "error", serr.Err)
		} else {
			op.log.Info("Document signed", "destination", string(result.Handle), "mode", result.Destination.String(),
				"field", result.FieldName, "page", result.Page, "bytes", result.Size)
		}
		s.Metrics.ObserveOperation(string(Kind(err)), s.clock().Since(start))
		observability.EndSpan(span, err)
	}()

	steps := []struct {
		state State
		fn    func(context.Context) error
	}{
		{StateInit, op.init},
		{StateKeyLoaded, op.loadKey},
		{StateDocumentOpened, op.openDocument},
		{StateAppearancePlaced, op.placeAppearance},
		{StateRangesReserved, op.reserveRanges},
		{StateDigested, op.digestRanges},
		{StateSigned, op.sign},
		{StateFinalized, op.finalize},
		{StatePersisted, op.persist},
	}
	for _, step := range steps {
		if err := op.run(ctx, step.state, step.fn); err != nil {
			return nil, err
		}
	}

	return op.result(), nil
}

func (s *Service) clock() clockwork.Clock {
	if s.Clock == nil {
		return clockwork.NewRealClock()
	}
	return s.Clock
}

func (s *Service) tracer() trace.Tracer {
	if s.Tracer == nil {
		return observability.Tracer()
	}
	return s.Tracer
}

func (s *Service) hash() crypto.Hash {
	if s.Options.Hash == 0 {
		return crypto.SHA256
	}
	return s.Options.Hash
}

// run executes one transition. Cancellation is only observed here, between
// stages.
func (op *operation) run(ctx context.Context, next State, fn func(context.Context) error) error {
	if op.state.Terminal() {
		return newError(next, fmt.Errorf("%w: %s to %s", errTransition, op.state, next))
	}
	op.next = next
	if err := ctx.Err(); err != nil {
		return newError(next, err)
	}

	ctx, span := op.svc.tracer().Start(ctx, next.String())
	started := op.svc.clock().Now()
	err := fn(ctx)
	op.svc.Metrics.ObserveStage(next.String(), op.svc.clock().Since(started))
	observability.EndSpan(span, err)
	if err != nil {
		return newError(next, err)
	}

	op.state = next
	op.log.Debug("State transition", "state", next.String())
	return nil
}

func (op *operation) init(ctx context.Context) error {
	op.req.ApplyDefaults()
	if err := op.req.Validate(); err != nil {
		return err
	}
	op.dest = ResolveDestination(op.req)

	t, err := op.svc.Content.TypeOf(ctx, op.req.Source)
	if err != nil {
		return err
	}
	if t != store.NodeContent {
		return fmt.Errorf("%w: %s", store.ErrNotContent, op.req.Source)
	}
	if err := op.dest.check(ctx, op.svc.Content); err != nil {
		return err
	}

	base := op.svc.Options.WorkDir
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, workspaceName(op.req.Source, op.id))
	if err := os.Mkdir(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	op.workspace = dir

	op.log.Debug("Destination resolved", "mode", op.dest.Mode.String(),
		"folder", string(op.dest.Folder), "name", op.dest.Name)
	return nil
}

func (op *operation) loadKey(ctx context.Context) error {
	creds, err := op.svc.Credentials.ReadCredential(ctx, op.req.PrivateKey)
	if err != nil {
		return err
	}
	op.creds = creds

	material, err := keys.LoadKeyMaterial(creds, op.req.KeyType, op.req.StorePassword, op.req.KeyAlias, op.req.KeyPassword)
	clear(op.creds)
	if err != nil {
		return err
	}
	op.material = material

	op.signedBy = op.req.SignedBy
	if op.signedBy == "" {
		op.signedBy = material.FriendlyName
	}
	op.signedAt = op.svc.clock().Now()
	info := keys.GetKeyInfo(material.PrivateKey)
	op.log.Debug("Key loaded", "alias", material.Alias, "algorithm", info.Algorithm,
		"bits", info.BitSize, "curve", info.Curve, "chain", len(material.CertificateChain))
	return nil
}

func (op *operation) openDocument(ctx context.Context) error {
	data, err := store.ReadAll(ctx, op.svc.Content, op.req.Source)
	if err != nil {
		return err
	}
	doc, err := reader.Open(data)
	if err != nil {
		return err
	}
	op.doc = doc

	if !op.req.NewRevision && doc.IsSigned() {
		op.log.Warn("Rewriting a signed document invalidates its existing signatures")
	}
	return nil
}

func (op *operation) placeAppearance(context.Context) error {
	op.page = op.doc.ResolvePageNumber(op.req.Page)
	if !op.req.Visible() {
		return nil
	}

	pageRect, err := op.doc.PageSize(op.page - 1)
	if err != nil {
		return err
	}
	rect := stamp.Place(op.req.Position, pageRect, op.req.Width, op.req.Height, op.req.ManualX, op.req.ManualY)
	op.appearance = &stamp.SignatureAppearance{
		Rect:      rect,
		PageIndex: op.page - 1,
		Lines:     stamp.SignatureLines(op.signedBy, op.signedAt, op.req.Reason, op.req.Location),
	}
	op.log.Debug("Appearance placed", "page", op.page, "position", string(op.req.Position),
		"rect", fmt.Sprintf("%g %g %g %g", rect.LLX, rect.LLY, rect.URX, rect.URY))
	return nil
}

func (op *operation) reserveRanges(context.Context) error {
	mode := signers.ModeAppend
	if !op.req.NewRevision {
		mode = signers.ModeRewrite
	}

	op.signer = &signers.SimpleSigner{
		PrivateKey:  op.material.PrivateKey,
		CertChain:   op.material.CertificateChain,
		Hash:        op.svc.hash(),
		SigningTime: op.signedAt,
	}
	// Long chains need more room than the configured reservation.
	size := op.svc.Options.SignatureSize
	if size <= 0 {
		size = signers.DefaultSignatureSize
	}
	size = max(size, op.signer.EstimatedSize())

	opts := signers.SessionOptions{
		SignatureSize: size,
		SignerName:    op.signedBy,
		SigningTime:   op.signedAt,
		Style:         op.svc.Options.Style,
	}
	if op.svc.Options.Application != "" {
		opts.BuildProps = &signers.BuildProps{Name: op.svc.Options.Application, Revision: op.svc.Options.Version}
	}

	session, err := signers.BeginSignature(op.doc, mode, opts)
	if err != nil {
		return err
	}
	if err := session.SetMetadataFields(optional(op.req.Reason), optional(op.req.Location)); err != nil {
		return err
	}
	if err := session.SetAppearance(op.appearance); err != nil {
		return err
	}

	ranges, err := session.DigestRanges()
	if err != nil {
		return err
	}
	draft, err := session.Draft()
	if err != nil {
		return err
	}
	op.session, op.ranges, op.draft = session, ranges, draft
	op.log.Debug("Signature reserved", "mode", mode.String(), "field", session.FieldName(),
		"reserved", size, "covered", ranges.Covered(), "byte_range", fmt.Sprint([4]int64(ranges)))
	return nil
}

func (op *operation) digestRanges(context.Context) error {
	digest, err := signers.Digest(op.draft, op.ranges, op.svc.hash())
	if err != nil {
		return err
	}
	op.digest = digest
	return nil
}

func (op *operation) sign(context.Context) error {
	sig, err := op.signer.SignDigest(op.digest)
	if err != nil {
		return err
	}
	op.signature = sig
	return nil
}

func (op *operation) finalize(context.Context) error {
	out, err := op.session.Finalize(op.signature)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(op.workspace, "signed.pdf"), out, 0o600); err != nil {
		return fmt.Errorf("failed to stage signed document: %w", err)
	}
	op.output = out
	return nil
}

func (op *operation) persist(ctx context.Context) error {
	handle, err := op.dest.commit(ctx, op.svc.Content, op.svc.Destinations, op.output)
	if err != nil {
		return err
	}
	op.handle = handle
	op.svc.Metrics.ObserveOutput(len(op.output), len(op.signature))

	if op.svc.Metadata != nil {
		aspect := metadata.SignedAspect{
			SignatureDate: op.signedAt,
			SignedBy:      op.signedBy,
			Reason:        op.req.Reason,
			Location:      op.req.Location,
		}
		if err := op.svc.Metadata.TagSigned(ctx, handle, aspect); err != nil {
			op.log.Warn("Failed to record signed aspect", "destination", string(handle), "error", err)
		}
	}
	return nil
}

func (op *operation) result() *Result {
	r := &Result{
		OperationID: op.id,
		Handle:      op.handle,
		Destination: op.dest.Mode,
		FieldName:   op.session.FieldName(),
		Page:        op.page,
		Visible:     op.appearance != nil,
		ByteRanges:  op.ranges,
		SignedBy:    op.signedBy,
		SignedAt:    op.signedAt,
		Size:        len(op.output),
	}
	if op.appearance != nil {
		r.Rect = op.appearance.Rect
	}
	return r
}

// cleanup releases everything the operation holds. It runs on every exit
// path.
func (op *operation) cleanup() {
	clear(op.creds)
	op.creds = nil
	op.material.Zero()
	op.material = nil
	op.signer = nil
	op.draft = nil
	op.digest = nil

	if op.workspace != "" {
		if err := os.RemoveAll(op.workspace); err != nil {
			op.log.Warn("Failed to remove workspace", "workspace", op.workspace, "error", err)
		}
	}
}

// workspaceName derives a directory name from the source handle and the
// operation id.
func workspaceName(source store.Handle, id string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, string(source))
	if len(name) > 64 {
		name = name[len(name)-64:]
	}
	return "pdfsign-" + name + "-" + id
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
