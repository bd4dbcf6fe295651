package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hwops/assetsync/internal/assets"
	"github.com/hwops/assetsync/internal/directory"
)

const (
	emailAttrID    = 134
	assigneeAttrID = 135
	dateAttrID     = 137
	statusAttrID   = 138
)

// fakeAssets is an in-memory AssetService.
type fakeAssets struct {
	objects map[int]*assets.Object

	updateCalls int
	getErrs     map[int]error // object id -> forced error
	applyWrites bool          // false simulates a write that does not stick
}

func newFakeAssets() *fakeAssets {
	return &fakeAssets{
		objects:     make(map[int]*assets.Object),
		getErrs:     make(map[int]error),
		applyWrites: true,
	}
}

func (f *fakeAssets) SchemaByName(ctx context.Context, name string) (*assets.Schema, error) {
	if name != "Hardware" {
		return nil, assets.ErrSchemaNotFound
	}
	return &assets.Schema{ID: 7, Name: name}, nil
}

func (f *fakeAssets) ObjectTypeByName(ctx context.Context, schemaID int, name string) (*assets.ObjectType, error) {
	if name != "Laptops" {
		return nil, assets.ErrObjectTypeNotFound
	}
	return &assets.ObjectType{ID: 23, Name: name}, nil
}

func (f *fakeAssets) AttributeID(ctx context.Context, typeID int, name string) (int, error) {
	switch name {
	case "User Email":
		return emailAttrID, nil
	case "Assignee":
		return assigneeAttrID, nil
	case "Retirement Date":
		return dateAttrID, nil
	case "Status":
		return statusAttrID, nil
	case "Purchase Date":
		return 139, nil
	case "Serial Number":
		return 136, nil
	}
	return 0, assets.ErrAttributeNotFound
}

func (f *fakeAssets) QueryAll(ctx context.Context, query string) ([]assets.Object, error) {
	var all []assets.Object
	for i := 1; i <= len(f.objects)+10; i++ {
		if obj, ok := f.objects[i]; ok {
			// Query entries are attribute-incomplete by contract.
			all = append(all, assets.Object{ID: obj.ID, ObjectKey: obj.ObjectKey, ObjectType: obj.ObjectType})
		}
	}
	return all, nil
}

func (f *fakeAssets) Get(ctx context.Context, objectID int) (*assets.Object, error) {
	if err := f.getErrs[objectID]; err != nil {
		return nil, err
	}
	obj, ok := f.objects[objectID]
	if !ok {
		return nil, assets.ErrAssetNotFound
	}
	copied := *obj
	return &copied, nil
}

func (f *fakeAssets) GetByKey(ctx context.Context, objectKey string) (*assets.Object, error) {
	for _, obj := range f.objects {
		if obj.ObjectKey == objectKey {
			return f.Get(ctx, obj.ID)
		}
	}
	return nil, assets.ErrAssetNotFound
}

func (f *fakeAssets) Update(ctx context.Context, objectID int, updates []assets.AttributeUpdate) (*assets.Object, error) {
	f.updateCalls++
	obj, ok := f.objects[objectID]
	if !ok {
		return nil, assets.ErrAssetNotFound
	}
	if f.applyWrites {
		for _, update := range updates {
			setAttr(obj, update.ObjectTypeAttributeID, update.Values[0].Value)
		}
	}
	copied := *obj
	return &copied, nil
}

func (f *fakeAssets) Create(ctx context.Context, typeID int, updates []assets.AttributeUpdate) (*assets.Object, error) {
	id := len(f.objects) + 1
	obj := &assets.Object{
		ID:         id,
		ObjectKey:  fmt.Sprintf("HW-%d", id),
		ObjectType: assets.ObjectType{ID: typeID, Name: "Laptops"},
	}
	for _, update := range updates {
		setAttr(obj, update.ObjectTypeAttributeID, update.Values[0].Value)
	}
	f.objects[id] = obj
	return obj, nil
}

func (f *fakeAssets) FindBySerialNumber(ctx context.Context, serial string, typeID int) (*assets.Object, error) {
	for _, obj := range f.objects {
		if assets.ExtractValue(obj, 136) == serial && (typeID == 0 || obj.ObjectType.ID == typeID) {
			return f.Get(ctx, obj.ID)
		}
	}
	return nil, assets.ErrAssetNotFound
}

func setAttr(obj *assets.Object, attrID int, value string) {
	for i := range obj.Attributes {
		if obj.Attributes[i].ObjectTypeAttributeID == attrID {
			obj.Attributes[i].Values = []assets.AttributeValue{{Value: value, DisplayValue: value}}
			return
		}
	}
	obj.Attributes = append(obj.Attributes, assets.ObjectAttribute{
		ObjectTypeAttributeID: attrID,
		Values:                []assets.AttributeValue{{Value: value, DisplayValue: value}},
	})
}

func (f *fakeAssets) add(id int, key string, attrs map[int]string) {
	obj := &assets.Object{ID: id, ObjectKey: key, ObjectType: assets.ObjectType{ID: 23, Name: "Laptops"}}
	for attrID, value := range attrs {
		setAttr(obj, attrID, value)
	}
	f.objects[id] = obj
}

// fakeDirectory is an in-memory Directory.
type fakeDirectory struct {
	accounts map[string]string // email -> account id
	inactive map[string]bool   // account id -> inactive
	errs     map[string]error  // email -> forced error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		accounts: make(map[string]string),
		inactive: make(map[string]bool),
		errs:     make(map[string]error),
	}
}

func (f *fakeDirectory) AccountIDForEmail(ctx context.Context, email string) (string, error) {
	if err := f.errs[email]; err != nil {
		return "", err
	}
	id, ok := f.accounts[email]
	if !ok {
		return "", fmt.Errorf("%w: %s", directory.ErrUserNotFound, email)
	}
	return id, nil
}

func (f *fakeDirectory) IsAccountActive(ctx context.Context, accountID string) (bool, error) {
	return !f.inactive[accountID], nil
}

func testEngine(f *fakeAssets, d *fakeDirectory) *Engine {
	return New(f, d, &Config{
		Schema:                  "Hardware",
		ObjectType:              "Laptops",
		EmailAttribute:          "User Email",
		AssigneeAttribute:       "Assignee",
		RetirementDateAttribute: "Retirement Date",
		StatusAttribute:         "Status",
		RetiredStatusValue:      "Retired",
	})
}

// TestProcessAsset_UpdatesUnassigned covers the straight-through path: a
// resolvable, active owner lands as the assignee and verifies.
func TestProcessAsset_UpdatesUnassigned(t *testing.T) {
	f := newFakeAssets()
	f.add(1, "HW-1", map[int]string{emailAttrID: "jane@example.com"})
	d := newFakeDirectory()
	d.accounts["jane@example.com"] = "acc-1"

	out := testEngine(f, d).ProcessAsset(context.Background(), 1, false)
	if !out.Success || !out.Updated || out.Skipped {
		t.Fatalf("outcome = %+v, want updated success", out)
	}
	if out.AccountID != "acc-1" {
		t.Errorf("AccountID = %q, want acc-1", out.AccountID)
	}
	if got := assets.ExtractValue(f.objects[1], assigneeAttrID); got != "acc-1" {
		t.Errorf("stored assignee = %q, want acc-1", got)
	}
}

// TestProcessAsset_NoEmailIsSkip verifies a missing owner email is a skip
// with a reason, never a failure.
func TestProcessAsset_NoEmailIsSkip(t *testing.T) {
	f := newFakeAssets()
	f.add(1, "HW-1", nil)

	out := testEngine(f, newFakeDirectory()).ProcessAsset(context.Background(), 1, false)
	if !out.Skipped || !out.Success {
		t.Fatalf("outcome = %+v, want skip", out)
	}
	if out.SkipReason == "" {
		t.Error("SkipReason is empty")
	}
	if f.updateCalls != 0 {
		t.Errorf("update calls = %d, want 0", f.updateCalls)
	}
}

// TestProcessAsset_UnresolvableEmailIsSkip covers owners who left: their
// email resolves to no account.
func TestProcessAsset_UnresolvableEmailIsSkip(t *testing.T) {
	f := newFakeAssets()
	f.add(1, "HW-1", map[int]string{emailAttrID: "gone@example.com"})

	out := testEngine(f, newFakeDirectory()).ProcessAsset(context.Background(), 1, false)
	if !out.Skipped {
		t.Fatalf("outcome = %+v, want skip", out)
	}
	if f.updateCalls != 0 {
		t.Errorf("update calls = %d, want 0", f.updateCalls)
	}
}

// TestProcessAsset_AmbiguousEmailIsSkip verifies ambiguity is never
// resolved by guessing.
func TestProcessAsset_AmbiguousEmailIsSkip(t *testing.T) {
	f := newFakeAssets()
	f.add(1, "HW-1", map[int]string{emailAttrID: "shared@example.com"})
	d := newFakeDirectory()
	d.errs["shared@example.com"] = fmt.Errorf("%w: shared@example.com", directory.ErrMultipleUsersFound)

	out := testEngine(f, d).ProcessAsset(context.Background(), 1, false)
	if !out.Skipped {
		t.Fatalf("outcome = %+v, want skip", out)
	}
	if !strings.Contains(out.SkipReason, directory.ErrMultipleUsersFound.Error()) {
		t.Errorf("SkipReason = %q, want the multiple-users condition named", out.SkipReason)
	}
}

// TestProcessAsset_InactiveAccountIsSkip keeps deactivated owners off
// assets.
func TestProcessAsset_InactiveAccountIsSkip(t *testing.T) {
	f := newFakeAssets()
	f.add(1, "HW-1", map[int]string{emailAttrID: "old@example.com"})
	d := newFakeDirectory()
	d.accounts["old@example.com"] = "acc-9"
	d.inactive["acc-9"] = true

	out := testEngine(f, d).ProcessAsset(context.Background(), 1, false)
	if !out.Skipped {
		t.Fatalf("outcome = %+v, want skip", out)
	}
	if f.updateCalls != 0 {
		t.Errorf("update calls = %d, want 0", f.updateCalls)
	}
}

// TestProcessAsset_Idempotent verifies the second run over an already
// synced asset writes nothing.
func TestProcessAsset_Idempotent(t *testing.T) {
	f := newFakeAssets()
	f.add(1, "HW-1", map[int]string{emailAttrID: "jane@example.com"})
	d := newFakeDirectory()
	d.accounts["jane@example.com"] = "acc-1"
	e := testEngine(f, d)

	first := e.ProcessAsset(context.Background(), 1, false)
	if !first.Updated {
		t.Fatalf("first outcome = %+v, want updated", first)
	}

	second := e.ProcessAsset(context.Background(), 1, false)
	if !second.Skipped || second.SkipReason != "assignee already set" {
		t.Fatalf("second outcome = %+v, want already-set skip", second)
	}
	if f.updateCalls != 1 {
		t.Errorf("update calls = %d, want 1", f.updateCalls)
	}
}

// TestProcessAsset_Reassignment overwrites a stale assignee when the owner
// email points at a different account.
func TestProcessAsset_Reassignment(t *testing.T) {
	f := newFakeAssets()
	f.add(1, "HW-1", map[int]string{
		emailAttrID:    "new@example.com",
		assigneeAttrID: "acc-old",
	})
	d := newFakeDirectory()
	d.accounts["new@example.com"] = "acc-new"

	out := testEngine(f, d).ProcessAsset(context.Background(), 1, false)
	if !out.Updated {
		t.Fatalf("outcome = %+v, want updated", out)
	}
	if out.PreviousAssignee != "acc-old" {
		t.Errorf("PreviousAssignee = %q, want acc-old", out.PreviousAssignee)
	}
	if got := assets.ExtractValue(f.objects[1], assigneeAttrID); got != "acc-new" {
		t.Errorf("stored assignee = %q, want acc-new", got)
	}
}

// TestProcessAsset_VerificationFailure covers a write the service accepted
// but did not apply.
func TestProcessAsset_VerificationFailure(t *testing.T) {
	f := newFakeAssets()
	f.applyWrites = false
	f.add(1, "HW-1", map[int]string{emailAttrID: "jane@example.com"})
	d := newFakeDirectory()
	d.accounts["jane@example.com"] = "acc-1"

	out := testEngine(f, d).ProcessAsset(context.Background(), 1, false)
	if out.Success {
		t.Fatalf("outcome = %+v, want failure on verification", out)
	}
	if out.Error == "" {
		t.Error("Error is empty")
	}
}

// TestProcessAsset_DryRun verifies nothing is written.
func TestProcessAsset_DryRun(t *testing.T) {
	f := newFakeAssets()
	f.add(1, "HW-1", map[int]string{emailAttrID: "jane@example.com"})
	d := newFakeDirectory()
	d.accounts["jane@example.com"] = "acc-1"

	out := testEngine(f, d).ProcessAsset(context.Background(), 1, true)
	if !out.Success || out.Updated {
		t.Fatalf("outcome = %+v, want success without update", out)
	}
	if !out.DryRun {
		t.Error("DryRun flag not set on outcome")
	}
	if f.updateCalls != 0 {
		t.Errorf("update calls = %d, want 0", f.updateCalls)
	}
}

// TestRun_BatchIsolation verifies one asset's failure never aborts the
// rest of the batch.
func TestRun_BatchIsolation(t *testing.T) {
	f := newFakeAssets()
	f.add(1, "HW-1", map[int]string{emailAttrID: "a@example.com"})
	f.add(2, "HW-2", map[int]string{emailAttrID: "b@example.com"})
	f.add(3, "HW-3", map[int]string{emailAttrID: "c@example.com"})
	f.getErrs[2] = errors.New("boom")
	d := newFakeDirectory()
	d.accounts["a@example.com"] = "acc-a"
	d.accounts["b@example.com"] = "acc-b"
	d.accounts["c@example.com"] = "acc-c"

	outcomes, err := testEngine(f, d).Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("Run() produced %d outcomes, want 3", len(outcomes))
	}

	updated := 0
	failed := 0
	for _, out := range outcomes {
		if out.Updated {
			updated++
		}
		if out.Error != "" {
			failed++
		}
	}
	if updated != 2 || failed != 1 {
		t.Errorf("updated = %d failed = %d, want 2 and 1", updated, failed)
	}
}

// TestRun_UnknownSchemaIsFatal verifies discovery failure aborts the run
// before any asset is touched.
func TestRun_UnknownSchemaIsFatal(t *testing.T) {
	f := newFakeAssets()
	f.add(1, "HW-1", map[int]string{emailAttrID: "a@example.com"})
	e := New(f, newFakeDirectory(), &Config{
		Schema:            "Nonexistent",
		ObjectType:        "Laptops",
		EmailAttribute:    "User Email",
		AssigneeAttribute: "Assignee",
	})

	_, err := e.Run(context.Background(), false)
	if !errors.Is(err, assets.ErrSchemaNotFound) {
		t.Fatalf("Run() error = %v, want ErrSchemaNotFound", err)
	}
	if f.updateCalls != 0 {
		t.Errorf("update calls = %d, want 0", f.updateCalls)
	}
}

// TestRunRetirement covers the three branches: past date retires, future
// date waits, already retired stays put.
func TestRunRetirement(t *testing.T) {
	f := newFakeAssets()
	f.add(1, "HW-1", map[int]string{dateAttrID: "2020-01-01", statusAttrID: "In Service"})
	f.add(2, "HW-2", map[int]string{dateAttrID: "2099-01-01", statusAttrID: "In Service"})
	f.add(3, "HW-3", map[int]string{dateAttrID: "2020-01-01", statusAttrID: "Retired"})
	f.add(4, "HW-4", map[int]string{statusAttrID: "In Service"})

	outcomes, err := testEngine(f, newFakeDirectory()).RunRetirement(context.Background(), false)
	if err != nil {
		t.Fatalf("RunRetirement() failed: %v", err)
	}
	if len(outcomes) != 4 {
		t.Fatalf("RunRetirement() produced %d outcomes, want 4", len(outcomes))
	}

	byKey := make(map[string]Outcome)
	for _, out := range outcomes {
		byKey[out.ObjectKey] = out
	}

	if !byKey["HW-1"].Updated {
		t.Errorf("HW-1 not retired: %+v", byKey["HW-1"])
	}
	if got := assets.ExtractValue(f.objects[1], statusAttrID); got != "Retired" {
		t.Errorf("HW-1 status = %q, want Retired", got)
	}
	if !byKey["HW-2"].Skipped {
		t.Errorf("HW-2 (future date) not skipped: %+v", byKey["HW-2"])
	}
	if !byKey["HW-3"].Skipped {
		t.Errorf("HW-3 (already retired) not skipped: %+v", byKey["HW-3"])
	}
	if !byKey["HW-4"].Skipped {
		t.Errorf("HW-4 (no date) not skipped: %+v", byKey["HW-4"])
	}
}

// TestRunRetirement_VerificationFailure covers a retirement write the
// service accepted but did not apply: the status must read back as the
// retired value before the outcome counts as updated.
func TestRunRetirement_VerificationFailure(t *testing.T) {
	f := newFakeAssets()
	f.applyWrites = false
	f.add(1, "HW-1", map[int]string{dateAttrID: "2020-01-01", statusAttrID: "In Service"})

	outcomes, err := testEngine(f, newFakeDirectory()).RunRetirement(context.Background(), false)
	if err != nil {
		t.Fatalf("RunRetirement() failed: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("RunRetirement() produced %d outcomes, want 1", len(outcomes))
	}

	out := outcomes[0]
	if out.Success || out.Updated {
		t.Fatalf("outcome = %+v, want failure on verification", out)
	}
	if out.Error == "" {
		t.Error("Error is empty")
	}
	if f.updateCalls != 1 {
		t.Errorf("update calls = %d, want 1", f.updateCalls)
	}
}

// TestCreateAsset_NormalizesDates verifies a creation payload gets
// canonical dates.
func TestCreateAsset_NormalizesDates(t *testing.T) {
	f := newFakeAssets()
	e := testEngine(f, newFakeDirectory())

	obj, err := e.CreateAsset(context.Background(), map[string]string{
		"Serial Number": "SN-42",
		"Purchase Date": "02/03/2024",
	}, false)
	if err != nil {
		t.Fatalf("CreateAsset() failed: %v", err)
	}
	if got := assets.ExtractValue(obj, 139); got != "2024-03-02" {
		t.Errorf("purchase date = %q, want 2024-03-02", got)
	}
}

// TestCreateAsset_UnknownAttributeFails verifies a typo fails the whole
// create before any write.
func TestCreateAsset_UnknownAttributeFails(t *testing.T) {
	f := newFakeAssets()
	e := testEngine(f, newFakeDirectory())

	_, err := e.CreateAsset(context.Background(), map[string]string{"Serail Number": "SN-42"}, false)
	if !errors.Is(err, assets.ErrAttributeNotFound) {
		t.Fatalf("CreateAsset() error = %v, want ErrAttributeNotFound", err)
	}
	if len(f.objects) != 0 {
		t.Errorf("objects created = %d, want 0", len(f.objects))
	}
}

// TestSummarize groups skips by reason and counts updates.
func TestSummarize(t *testing.T) {
	outcomes := []Outcome{
		{Success: true, Updated: true},
		{Success: true, Updated: true},
		{Success: true, Skipped: true, SkipReason: "assignee already set"},
		{Success: true, Skipped: true, SkipReason: "assignee already set"},
		{Success: true, Skipped: true, SkipReason: "no directory account for x@example.com"},
		{Error: "boom", Err: errors.New("boom")},
	}

	s := Summarize(outcomes)
	if s.Total != 6 || s.Successful != 5 || s.Updated != 2 || s.Skipped != 3 || s.Errors != 1 {
		t.Errorf("summary = %+v, want 6/5/2/3/1", s)
	}
	if s.SkipReasons["assignee already set"] != 2 {
		t.Errorf("skip reason count = %d, want 2", s.SkipReasons["assignee already set"])
	}
	if s.ErrorTypes["Other"] != 1 {
		t.Errorf("error types = %v, want one Other", s.ErrorTypes)
	}
	if s.SuccessRate < 83.0 || s.SuccessRate > 84.0 {
		t.Errorf("success rate = %.1f, want ~83.3", s.SuccessRate)
	}
}
