// Package syncer reconciles asset assignee attributes against the identity
// directory.
//
// Workflow per asset:
//  1. Fetch the complete record (query entries are attribute-incomplete)
//  2. Read the owner email attribute; no value is a skip, not a failure
//  3. Resolve the email to exactly one account id; unresolvable and
//     ambiguous emails are skips
//  4. Skip inactive accounts and assets whose assignee already matches
//  5. Write the assignee and verify by reading the record back
//
// Skips are expected business conditions; failures are operational
// problems. The distinction flows through every outcome so a run summary
// can separate "nothing to do" from "something broke". One asset's failure
// never aborts the batch.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hwops/assetsync/internal/assets"
	"github.com/hwops/assetsync/internal/directory"
	"github.com/hwops/assetsync/internal/transport"
)

// AssetService is the catalog surface the engine needs.
type AssetService interface {
	SchemaByName(ctx context.Context, name string) (*assets.Schema, error)
	ObjectTypeByName(ctx context.Context, schemaID int, name string) (*assets.ObjectType, error)
	AttributeID(ctx context.Context, typeID int, name string) (int, error)
	QueryAll(ctx context.Context, query string) ([]assets.Object, error)
	Get(ctx context.Context, objectID int) (*assets.Object, error)
	GetByKey(ctx context.Context, objectKey string) (*assets.Object, error)
	Update(ctx context.Context, objectID int, updates []assets.AttributeUpdate) (*assets.Object, error)
	Create(ctx context.Context, typeID int, updates []assets.AttributeUpdate) (*assets.Object, error)
	FindBySerialNumber(ctx context.Context, serial string, typeID int) (*assets.Object, error)
}

// Directory is the identity surface the engine needs.
type Directory interface {
	AccountIDForEmail(ctx context.Context, email string) (string, error)
	IsAccountActive(ctx context.Context, accountID string) (bool, error)
}

// Outcome records what happened to one asset.
type Outcome struct {
	ObjectKey        string    `json:"object_key"`
	Success          bool      `json:"success"`
	Updated          bool      `json:"updated"`
	Skipped          bool      `json:"skipped"`
	SkipReason       string    `json:"skip_reason,omitempty"`
	Email            string    `json:"email,omitempty"`
	AccountID        string    `json:"account_id,omitempty"`
	PreviousAssignee string    `json:"previous_assignee,omitempty"`
	Error            string    `json:"error,omitempty"`
	DryRun           bool      `json:"dry_run,omitempty"`
	Timestamp        time.Time `json:"timestamp"`

	// Err holds the underlying error for classification; Error carries
	// its text into the results artifact.
	Err error `json:"-"`
}

// Config holds the attribute and type names the engine operates on.
type Config struct {
	Schema     string
	ObjectType string

	EmailAttribute    string
	AssigneeAttribute string

	// Retirement processing.
	RetirementDateAttribute string
	StatusAttribute         string
	RetiredStatusValue      string

	// Logger for engine activity. Defaults to stderr.
	Logger *log.Logger

	// Clock is swappable for tests.
	Clock func() time.Time
}

// Engine drives sync runs.
type Engine struct {
	assets AssetService
	dir    Directory
	config *Config
	logger *log.Logger
	clock  func() time.Time

	resolved *resolvedIDs
}

// resolvedIDs are the numeric ids behind the configured names, resolved
// once per run.
type resolvedIDs struct {
	schemaID     int
	typeID       int
	emailAttr    int
	assigneeAttr int
}

// New creates a sync engine.
func New(service AssetService, dir Directory, config *Config) *Engine {
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		assets: service,
		dir:    dir,
		config: config,
		logger: logger,
		clock:  clock,
	}
}

// resolve maps the configured schema, type and attribute names to ids.
// Failure here is fatal for the run: nothing can proceed without them.
func (e *Engine) resolve(ctx context.Context) (*resolvedIDs, error) {
	if e.resolved != nil {
		return e.resolved, nil
	}

	schema, err := e.assets.SchemaByName(ctx, e.config.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve schema: %w", err)
	}
	objType, err := e.assets.ObjectTypeByName(ctx, schema.ID, e.config.ObjectType)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve object type: %w", err)
	}
	emailAttr, err := e.assets.AttributeID(ctx, objType.ID, e.config.EmailAttribute)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve email attribute: %w", err)
	}
	assigneeAttr, err := e.assets.AttributeID(ctx, objType.ID, e.config.AssigneeAttribute)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve assignee attribute: %w", err)
	}

	e.resolved = &resolvedIDs{
		schemaID:     schema.ID,
		typeID:       objType.ID,
		emailAttr:    emailAttr,
		assigneeAttr: assigneeAttr,
	}
	return e.resolved, nil
}

// ProcessAsset syncs one asset by id. The returned outcome is always
// non-nil; errors are folded into it.
func (e *Engine) ProcessAsset(ctx context.Context, objectID int, dryRun bool) *Outcome {
	out := &Outcome{Timestamp: e.clock(), DryRun: dryRun}

	ids, err := e.resolve(ctx)
	if err != nil {
		out.Err = err
		out.Error = err.Error()
		return out
	}

	obj, err := e.assets.Get(ctx, objectID)
	if err != nil {
		out.Err = fmt.Errorf("failed to fetch asset %d: %w", objectID, err)
		out.Error = out.Err.Error()
		return out
	}
	return e.processObject(ctx, obj, ids, dryRun)
}

// processObject runs the per-asset state machine on a complete record.
func (e *Engine) processObject(ctx context.Context, obj *assets.Object, ids *resolvedIDs, dryRun bool) *Outcome {
	out := &Outcome{
		ObjectKey: obj.ObjectKey,
		Timestamp: e.clock(),
		DryRun:    dryRun,
	}

	email := assets.ExtractValue(obj, ids.emailAttr)
	if email == "" {
		return skip(out, fmt.Sprintf("no %q value", e.config.EmailAttribute))
	}
	out.Email = email

	accountID, err := e.dir.AccountIDForEmail(ctx, email)
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrUserNotFound):
			return skip(out, fmt.Sprintf("no directory account for %s", email))
		case errors.Is(err, directory.ErrMultipleUsersFound):
			// The reason names the condition so run summaries can group on
			// it: "multiple users found: N accounts match <email>".
			return skip(out, fmt.Sprintf("directory lookup failed: %v", err))
		}
		out.Err = err
		out.Error = err.Error()
		return out
	}
	out.AccountID = accountID

	active, err := e.dir.IsAccountActive(ctx, accountID)
	if err != nil {
		out.Err = err
		out.Error = err.Error()
		return out
	}
	if !active {
		return skip(out, fmt.Sprintf("account inactive for %s", email))
	}

	current := assets.ExtractValue(obj, ids.assigneeAttr)
	out.PreviousAssignee = current
	if current != "" && assigneeMatches(obj, ids.assigneeAttr, accountID) {
		return skip(out, "assignee already set")
	}

	if dryRun {
		e.logger.Printf("[dry-run] Would set assignee on %s to %s", obj.ObjectKey, accountID)
		out.Success = true
		return out
	}

	update := assets.BuildAttributeUpdate(ids.assigneeAttr, accountID)
	if _, err := e.assets.Update(ctx, obj.ID, []assets.AttributeUpdate{update}); err != nil {
		out.Err = fmt.Errorf("failed to update %s: %w", obj.ObjectKey, err)
		out.Error = out.Err.Error()
		return out
	}

	// The write is only trusted once the record reads back with an
	// assignee. The service echoes reference attributes as display names,
	// so presence is the check, not string equality with the account id.
	verified, err := e.assets.Get(ctx, obj.ID)
	if err != nil {
		out.Err = fmt.Errorf("failed to verify %s: %w", obj.ObjectKey, err)
		out.Error = out.Err.Error()
		return out
	}
	if assets.ExtractValue(verified, ids.assigneeAttr) == "" {
		out.Err = fmt.Errorf("verification failed: assignee on %s still empty after update", obj.ObjectKey)
		out.Error = out.Err.Error()
		return out
	}

	e.logger.Printf("Updated %s: %s -> %s", obj.ObjectKey, email, accountID)
	out.Success = true
	out.Updated = true
	return out
}

// assigneeMatches reports whether the stored assignee already refers to
// accountID. The raw value carries the account id for user attributes;
// the display value carries the name, so only raw values are compared.
func assigneeMatches(obj *assets.Object, attributeID int, accountID string) bool {
	for _, attr := range obj.Attributes {
		if attr.ObjectTypeAttributeID != attributeID {
			continue
		}
		for _, v := range attr.Values {
			if v.Value == accountID {
				return true
			}
		}
	}
	return false
}

// ProcessByKey syncs one asset by its human-readable key.
func (e *Engine) ProcessByKey(ctx context.Context, objectKey string, dryRun bool) *Outcome {
	out := &Outcome{ObjectKey: objectKey, Timestamp: e.clock(), DryRun: dryRun}

	ids, err := e.resolve(ctx)
	if err != nil {
		out.Err = err
		out.Error = err.Error()
		return out
	}

	obj, err := e.assets.GetByKey(ctx, objectKey)
	if err != nil {
		out.Err = fmt.Errorf("failed to fetch asset %s: %w", objectKey, err)
		out.Error = out.Err.Error()
		return out
	}
	return e.processObject(ctx, obj, ids, dryRun)
}

// Run syncs every asset of the configured type. Assets are processed
// strictly one at a time; a failure on one asset is recorded and the batch
// continues. Only discovery failure aborts the run.
func (e *Engine) Run(ctx context.Context, dryRun bool) ([]Outcome, error) {
	ids, err := e.resolve(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := e.assets.QueryAll(ctx, fmt.Sprintf("objectType = %q", e.config.ObjectType))
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	e.logger.Printf("Processing %d assets", len(entries))

	outcomes := make([]Outcome, 0, len(entries))
	for i := range entries {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		// Query entries carry partial attributes; each asset is
		// re-fetched complete before any decision is made.
		obj, err := e.assets.Get(ctx, entries[i].ID)
		if err != nil {
			out := Outcome{
				ObjectKey: entries[i].ObjectKey,
				Timestamp: e.clock(),
				DryRun:    dryRun,
				Err:       err,
				Error:     err.Error(),
			}
			outcomes = append(outcomes, out)
			e.logger.Printf("ERROR: failed to fetch %s: %v", entries[i].ObjectKey, err)
			continue
		}

		out := e.processObject(ctx, obj, ids, dryRun)
		outcomes = append(outcomes, *out)

		// A rate limit response means the pacing assumption is wrong for
		// this tenant; the run stops rather than hammering on.
		var rle *transport.RateLimitError
		if out.Err != nil && errors.As(out.Err, &rle) {
			e.logger.Printf("Rate limited, stopping run (retry after %s)", rle.RetryAfter)
			return outcomes, out.Err
		}
	}

	return outcomes, nil
}

func skip(out *Outcome, reason string) *Outcome {
	out.Success = true
	out.Skipped = true
	out.SkipReason = reason
	return out
}
