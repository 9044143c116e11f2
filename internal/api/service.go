package api

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/davidahmann/parliament/internal/crypto"
	"github.com/davidahmann/parliament/internal/fallback"
	"github.com/davidahmann/parliament/internal/grade"
	"github.com/davidahmann/parliament/internal/ledger"
	"github.com/davidahmann/parliament/internal/pack"
	"github.com/davidahmann/parliament/internal/parliament"
	"github.com/davidahmann/parliament/internal/signals"
	"github.com/davidahmann/parliament/pkg/types"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrIdempotencyConflict = errors.New("request id reused with a different request")
)

// KeySigner signs audit records and exposes the key used to verify them.
type KeySigner interface {
	ledger.Signer
	PublicKey() ed25519.PublicKey
}

type ServiceOptions struct {
	Engine     *parliament.Engine
	Classifier *signals.Classifier
	Log        ledger.Log
	Signer     KeySigner
	Idem       *IdemCache
	Logger     *zap.Logger
	Now        func() time.Time
	NewID      func() string
}

// DecisionService runs a full pass for one request: classify, extract,
// evaluate, sign and append the audit record, then pick the user-facing
// output.
type DecisionService struct {
	engine     *parliament.Engine
	classifier *signals.Classifier
	log        ledger.Log
	signer     KeySigner
	idem       *IdemCache
	logger     *zap.Logger
	validate   *validator.Validate
	now        func() time.Time
	newID      func() string
	flight     singleflight.Group
}

func NewDecisionService(opts ServiceOptions) (*DecisionService, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("missing engine")
	}
	if opts.Log == nil {
		return nil, fmt.Errorf("missing audit log")
	}
	if opts.Signer == nil {
		return nil, fmt.Errorf("missing signer")
	}
	s := &DecisionService{
		engine:     opts.Engine,
		classifier: opts.Classifier,
		log:        opts.Log,
		signer:     opts.Signer,
		idem:       opts.Idem,
		logger:     opts.Logger,
		validate:   validator.New(),
		now:        opts.Now,
		newID:      opts.NewID,
	}
	if s.classifier == nil {
		s.classifier = signals.DefaultClassifier()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

func (s *DecisionService) PublicKey() ed25519.PublicKey { return s.signer.PublicKey() }

func (s *DecisionService) Classifier() *signals.Classifier { return s.classifier }

// Decide evaluates req and appends its audit record. A request id that was
// already decided returns the cached response without a second append.
func (s *DecisionService) Decide(ctx context.Context, req EvaluateRequest) (EvaluateResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return EvaluateResponse{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	fingerprint, err := requestFingerprint(req)
	if err != nil {
		return EvaluateResponse{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if req.RequestID == "" {
		req.RequestID = s.newID()
		return s.decide(ctx, req, fingerprint)
	}

	v, err, _ := s.flight.Do(req.RequestID, func() (any, error) {
		if cached, ok := s.idem.Get(req.RequestID); ok {
			if cached.Fingerprint != fingerprint {
				return EvaluateResponse{}, ErrIdempotencyConflict
			}
			resp := cached.Response
			resp.Replayed = true
			return resp, nil
		}
		resp, err := s.replayFromLog(ctx, req, fingerprint)
		if !errors.Is(err, ledger.ErrRecordNotFound) {
			return resp, err
		}
		return s.decide(ctx, req, fingerprint)
	})
	if err != nil {
		return EvaluateResponse{}, err
	}
	return v.(EvaluateResponse), nil
}

func (s *DecisionService) decide(ctx context.Context, req EvaluateRequest, fingerprint string) (EvaluateResponse, error) {
	in := req.evaluationContext(req.RequestID)
	logger := s.logger.With(zap.String("request_id", in.RequestID), zap.String("session_id", in.SessionID))

	intent := s.classifier.Classify(in.Text)
	extracted := signals.ExtractSignals(in.Text)

	result, err := s.engine.Evaluate(ctx, in)
	if err != nil {
		if errors.Is(err, parliament.ErrInvalidInput) {
			return EvaluateResponse{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		logger.Error("evaluation failed", zap.Error(err))
		return EvaluateResponse{}, err
	}

	output := buildOutput(intent, in.FailureReasons(), result.Aggregate)

	record := types.AuditRecord{
		Schema:    ledger.AuditSchema,
		RequestID: in.RequestID,
		SessionID: in.SessionID,
		CreatedAt: s.now().Format(time.RFC3339Nano),
		Context:   in,
		Intent:    intent,
		Signals:   extracted,
		Votes:     result.Votes,
		Aggregate: result.Aggregate,
		Output:    output,
	}
	stored, err := ledger.MakeRecord(record, s.signer)
	if err != nil {
		logger.Error("build audit record", zap.Error(err))
		return EvaluateResponse{}, err
	}
	if err := s.log.Append(ctx, stored); err != nil {
		logger.Error("append audit record", zap.String("record_id", stored.RecordID), zap.Error(err))
		return EvaluateResponse{}, fmt.Errorf("append audit record: %w", err)
	}

	resp := EvaluateResponse{
		RequestID: in.RequestID,
		SessionID: in.SessionID,
		RecordID:  stored.RecordID,
		Intent:    intent,
		Signals:   extracted,
		Votes:     result.Votes,
		Aggregate: result.Aggregate,
		Output:    output,
	}
	s.idem.Put(IdemRecord{RequestID: in.RequestID, Fingerprint: fingerprint, Response: resp})

	logger.Info("decision recorded",
		zap.String("record_id", stored.RecordID),
		zap.String("intent", string(intent)),
		zap.String("direction", string(result.Aggregate.Direction)),
		zap.String("confidence", string(result.Aggregate.Confidence)),
		zap.Int("votes", len(result.Votes)),
	)
	return resp, nil
}

// buildOutput picks the user-facing message. Only REJECT falls back to the
// static/rules-based messages; other directions summarize the aggregate.
func buildOutput(intent types.IntentType, reasons []string, agg types.ParliamentAggregate) types.AuditOutput {
	if agg.Direction == types.DirectionReject {
		msg := fallback.Select(intent, reasons)
		return types.AuditOutput{Message: msg.Text, Source: msg.Source}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s confidence, score %d, risk %d).",
		strings.ToLower(string(agg.Direction)), strings.ToLower(string(agg.Confidence)), agg.Score, agg.Risk)
	if len(agg.TopReasons) > 0 {
		fmt.Fprintf(&b, " Reasons: %s.", strings.Join(agg.TopReasons, "; "))
	}
	if len(agg.RequiredNextSteps) > 0 {
		fmt.Fprintf(&b, " Next steps: %s.", strings.Join(agg.RequiredNextSteps, "; "))
	}
	return types.AuditOutput{Message: b.String(), Source: types.OutputAggregate}
}

// replayFromLog answers a request id that has left the cache but is already
// in the audit log. The stored context is compared against the incoming one
// after sensitive metadata is masked, since raw values are never persisted.
func (s *DecisionService) replayFromLog(ctx context.Context, req EvaluateRequest, fingerprint string) (EvaluateResponse, error) {
	stored, err := s.log.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return EvaluateResponse{}, err
	}
	rec, err := ledger.DecodeRecord(stored)
	if err != nil {
		return EvaluateResponse{}, fmt.Errorf("decode %s: %w", stored.RecordID, err)
	}
	same, err := sameContext(rec.Context, req.evaluationContext(req.RequestID))
	if err != nil {
		return EvaluateResponse{}, err
	}
	if !same {
		return EvaluateResponse{}, ErrIdempotencyConflict
	}

	resp := EvaluateResponse{
		RequestID: rec.RequestID,
		SessionID: rec.SessionID,
		RecordID:  stored.RecordID,
		Intent:    rec.Intent,
		Signals:   rec.Signals,
		Votes:     rec.Votes,
		Aggregate: rec.Aggregate,
		Output:    rec.Output,
	}
	s.idem.Put(IdemRecord{RequestID: req.RequestID, Fingerprint: fingerprint, Response: resp})
	s.logger.Debug("replayed from audit log",
		zap.String("request_id", req.RequestID),
		zap.String("record_id", stored.RecordID),
	)
	resp.Replayed = true
	return resp, nil
}

func sameContext(a, b types.EvaluationContext) (bool, error) {
	ca, err := crypto.CanonicalizeJSON(a)
	if err != nil {
		return false, err
	}
	cb, err := crypto.CanonicalizeJSON(b)
	if err != nil {
		return false, err
	}
	return string(ca) == string(cb), nil
}

func requestFingerprint(req EvaluateRequest) (string, error) {
	canonical, err := crypto.CanonicalizeJSON(req)
	if err != nil {
		return "", err
	}
	return crypto.DigestWithPrefix(canonical), nil
}

func (s *DecisionService) Classify(req TextRequest) (ClassifyResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return ClassifyResponse{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return ClassifyResponse{
		Intent:       s.classifier.Classify(req.Text),
		RulesVersion: s.classifier.RulesVersion(),
		RulesHash:    s.classifier.RulesHash(),
	}, nil
}

func (s *DecisionService) Signals(req TextRequest) (types.ExtractedSignals, error) {
	if err := s.validate.Struct(req); err != nil {
		return types.ExtractedSignals{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return signals.ExtractSignals(req.Text), nil
}

// AuditList reads a session's records, or the most recent records when
// sessionID is empty.
func (s *DecisionService) AuditList(ctx context.Context, sessionID string, limit int) ([]AuditEntry, error) {
	var (
		stored []ledger.StoredRecord
		err    error
	)
	if sessionID != "" {
		stored, err = s.log.ReadBySession(ctx, sessionID, limit)
	} else {
		stored, err = s.log.ReadAll(ctx, limit)
	}
	if err != nil {
		return nil, err
	}
	out := make([]AuditEntry, 0, len(stored))
	for _, rec := range stored {
		entry, err := s.entry(ctx, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *DecisionService) AuditGet(ctx context.Context, recordID string) (AuditEntry, error) {
	rec, err := s.log.Get(ctx, recordID)
	if err != nil {
		return AuditEntry{}, err
	}
	return s.entry(ctx, rec)
}

func (s *DecisionService) entry(ctx context.Context, rec ledger.StoredRecord) (AuditEntry, error) {
	decoded, err := ledger.DecodeRecord(rec)
	if err != nil {
		return AuditEntry{}, fmt.Errorf("decode %s: %w", rec.RecordID, err)
	}
	stored, err := s.log.Redactions(ctx, rec.RecordID)
	if err != nil {
		return AuditEntry{}, err
	}
	reds := make([]types.RedactionRecord, 0, len(stored))
	for _, red := range stored {
		r, err := ledger.DecodeRedaction(red)
		if err != nil {
			return AuditEntry{}, err
		}
		reds = append(reds, r)
	}
	return AuditEntry{Record: applyRedactions(decoded, reds), Redactions: reds}, nil
}

const redactedMarker = "[REDACTED]"

// applyRedactions masks redacted fields in the read view. The stored body
// and its signature are never touched.
func applyRedactions(rec types.AuditRecord, reds []types.RedactionRecord) types.AuditRecord {
	for _, red := range reds {
		for _, field := range red.Fields {
			switch field {
			case "context.text":
				rec.Context.Text = redactedMarker
			case "context.metadata":
				rec.Context.Metadata = nil
			case "context.retry":
				if rec.Context.Retry != nil {
					retry := *rec.Context.Retry
					retry.Reasons = []string{redactedMarker}
					rec.Context.Retry = &retry
				}
			case "signals":
				rec.Signals = types.ExtractedSignals{Entities: []string{}, Constraints: []string{}, Questions: []string{}}
			}
		}
	}
	return rec
}

// Verify recomputes the record digest, checks its signature against the
// service key and grades what the record preserves.
func (s *DecisionService) Verify(ctx context.Context, recordID string) (VerifyResult, error) {
	rec, err := s.log.Get(ctx, recordID)
	if err != nil {
		return VerifyResult{}, err
	}
	reds, err := s.log.Redactions(ctx, recordID)
	if err != nil {
		return VerifyResult{}, err
	}
	res := VerifyResult{RecordID: recordID, KeyID: rec.KeyID}
	if err := s.check(rec); err != nil {
		res.Error = err.Error()
	} else {
		res.Valid = true
	}
	res.Grade = s.grade(rec, res.Valid, len(reds))
	return res, nil
}

func (s *DecisionService) check(rec ledger.StoredRecord) error {
	if rec.KeyID != s.signer.KeyID() {
		return fmt.Errorf("record signed with unknown key %q", rec.KeyID)
	}
	return ledger.VerifyRecord(rec, s.signer.PublicKey())
}

func (s *DecisionService) grade(rec ledger.StoredRecord, valid bool, redactions int) grade.Result {
	decoded, err := ledger.DecodeRecord(rec)
	if err != nil {
		return grade.Result{Grade: "F", Reasons: []string{"undecodable_body"}}
	}
	return grade.Evaluate(grade.Input{Valid: valid, Record: decoded, Redactions: redactions})
}

// Export bundles a session's records (or the most recent records when
// sessionID is empty) into a verifiable zip pack.
func (s *DecisionService) Export(ctx context.Context, sessionID string, limit int, baseURL string) ([]byte, error) {
	var (
		stored []ledger.StoredRecord
		err    error
	)
	if sessionID != "" {
		stored, err = s.log.ReadBySession(ctx, sessionID, limit)
	} else {
		stored, err = s.log.ReadAll(ctx, limit)
	}
	if err != nil {
		return nil, err
	}

	in := pack.Input{
		SessionID:    sessionID,
		KeyID:        s.signer.KeyID(),
		PublicKey:    s.signer.PublicKey(),
		RulesVersion: s.classifier.RulesVersion(),
		RulesHash:    s.classifier.RulesHash(),
		Rules:        s.classifier.RulesSource(),
		CreatedAt:    s.now().Format(time.RFC3339),
	}
	for _, rec := range stored {
		reds, err := s.log.Redactions(ctx, rec.RecordID)
		if err != nil {
			return nil, err
		}
		valid := s.check(rec) == nil
		in.Records = append(in.Records, pack.Record{
			Stored:     rec,
			Redactions: reds,
			Valid:      valid,
			Grade:      s.grade(rec, valid, len(reds)),
		})
	}

	data, err := pack.BuildZip(in, baseURL)
	if err != nil {
		return nil, err
	}
	s.logger.Info("audit pack exported",
		zap.String("session_id", sessionID),
		zap.Int("records", len(in.Records)),
	)
	return data, nil
}

// Redact appends a redaction event referencing recordID.
func (s *DecisionService) Redact(ctx context.Context, recordID string, req RedactRequest) (types.RedactionRecord, error) {
	if err := s.validate.Struct(req); err != nil {
		return types.RedactionRecord{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	red := types.RedactionRecord{
		Schema:      ledger.RedactionSchema,
		RecordID:    recordID,
		Reason:      req.Reason,
		Fields:      req.Fields,
		RequestedBy: req.RequestedBy,
		CreatedAt:   s.now().Format(time.RFC3339Nano),
	}
	stored, err := ledger.MakeRedaction(red)
	if err != nil {
		return types.RedactionRecord{}, err
	}
	if err := s.log.AppendRedaction(ctx, stored); err != nil {
		return types.RedactionRecord{}, err
	}
	red.RedactionID = stored.RedactionID
	s.logger.Info("redaction recorded",
		zap.String("record_id", recordID),
		zap.String("redaction_id", stored.RedactionID),
		zap.Strings("fields", req.Fields),
	)
	return red, nil
}
