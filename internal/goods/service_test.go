package goods

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cargo-backoffice/internal/common"
	"github.com/noah-isme/cargo-backoffice/internal/events"
	"github.com/noah-isme/cargo-backoffice/internal/lock"
	"github.com/noah-isme/cargo-backoffice/internal/pricing"
	"github.com/noah-isme/cargo-backoffice/internal/query"
)

type fakeRepo struct {
	mu        sync.Mutex
	records   map[uuid.UUID]Record
	catalogue map[int64]Nomenclature
	seq       int64
	lastSub   pricing.Submission
	// scales rounds stored values like the NUMERIC columns do ("table.column").
	scales map[string]int32
	// commitErr fails the write after the hook ran and discards it.
	commitErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		records: map[uuid.UUID]Record{},
		catalogue: map[int64]Nomenclature{
			500: {ID: 500, Name: "Box", Price: dec("3"), Editable: false},
			501: {ID: 501, Name: "Tape", Price: dec("2"), Editable: true},
		},
	}
}

func (f *fakeRepo) Get(_ context.Context, id uuid.UUID) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Lines = append([]pricing.LineItem(nil), rec.Lines...)
	rec.Products = append([]pricing.Product(nil), rec.Products...)
	return rec, nil
}

func (f *fakeRepo) List(context.Context, query.Clause) ([]Record, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Record, 0, len(f.records))
	for _, r := range f.records {
		r.Lines, r.Products = nil, nil
		out = append(out, r)
	}
	return out, len(out), nil
}

func (f *fakeRepo) Nomenclatures(_ context.Context, ids []int64) (map[int64]Nomenclature, error) {
	out := map[int64]Nomenclature{}
	for _, id := range ids {
		if n, ok := f.catalogue[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

func (f *fakeRepo) Create(ctx context.Context, rec *Record, sub pricing.Submission, hook TxHook) error {
	f.mu.Lock()
	f.seq++
	rec.Number = FormatNumber(f.seq)
	rec.Version = 1
	rec.CreatedAt = time.Now().UTC()
	rec.UpdatedAt = rec.CreatedAt
	f.mu.Unlock()
	return f.commit(ctx, *rec, sub, hook)
}

func (f *fakeRepo) Update(ctx context.Context, rec *Record, sub pricing.Submission, hook TxHook) error {
	f.mu.Lock()
	cur, ok := f.records[rec.ID]
	if !ok || cur.Version != rec.Version {
		f.mu.Unlock()
		return ErrVersionConflict
	}
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	f.mu.Unlock()
	return f.commit(ctx, *rec, sub, hook)
}

func (f *fakeRepo) commit(ctx context.Context, rec Record, sub pricing.Submission, hook TxHook) error {
	if err := hook(ctx, nil); err != nil {
		return err
	}
	if f.commitErr != nil {
		return f.commitErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store(rec, sub)
	return nil
}

func (f *fakeRepo) store(rec Record, sub pricing.Submission) {
	f.lastSub = sub
	rec.Lines, rec.Products = surviving(sub)
	rec.Subtotal = f.column("goods_records.subtotal", rec.Subtotal)
	rec.Total = f.column("goods_records.total", rec.Total)
	for i := range rec.Lines {
		l := &rec.Lines[i]
		l.Origin = pricing.OriginPersisted
		l.Weight = f.column("goods_lines.weight", l.Weight)
		l.UnitPrice = f.column("goods_lines.unit_price", l.UnitPrice)
		l.Sum = f.column("goods_lines.sum", l.Sum)
	}
	for i := range rec.Products {
		p := &rec.Products[i]
		p.Origin = pricing.OriginPersisted
		p.Price = f.column("goods_products.price", p.Price)
		p.Sum = f.column("goods_products.sum", p.Sum)
	}
	f.records[rec.ID] = rec
}

func (f *fakeRepo) column(name string, v decimal.Decimal) decimal.Decimal {
	if places, ok := f.scales[name]; ok {
		return v.Round(places)
	}
	return v
}

var (
	createTableRe = regexp.MustCompile(`^CREATE TABLE (?:IF NOT EXISTS )?(\w+)`)
	numericColRe  = regexp.MustCompile(`^\s+(\w+)\s+NUMERIC\((\d+),(\d+)\)`)
)

// schemaScales reads the NUMERIC column scales from the initial migration.
func schemaScales(t *testing.T) map[string]int32 {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "db", "migrations", "0001_init.up.sql"))
	require.NoError(t, err)
	out := map[string]int32{}
	table := ""
	for _, line := range strings.Split(string(data), "\n") {
		if m := createTableRe.FindStringSubmatch(line); m != nil {
			table = m[1]
			continue
		}
		if m := numericColRe.FindStringSubmatch(line); m != nil && table != "" {
			scale, err := strconv.Atoi(m[3])
			require.NoError(t, err)
			out[table+"."+m[1]] = int32(scale)
		}
	}
	return out
}

type staticTariffs struct{ table pricing.TariffTable }

func (s *staticTariffs) Table(context.Context) (pricing.TariffTable, error) { return s.table, nil }

type staticBenefits []pricing.Candidate

func (b staticBenefits) Candidates(context.Context, int64, int64) ([]pricing.Candidate, error) {
	return b, nil
}

type staticWhitelist map[int64]pricing.Whitelist

func (w staticWhitelist) Whitelist(_ context.Context, branchID int64) (pricing.Whitelist, error) {
	return w[branchID], nil
}

type memStore struct {
	mu     sync.Mutex
	topics []string
}

func (m *memStore) InsertEvent(_ context.Context, ev events.Event) (events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = append(m.topics, ev.Topic)
	return ev, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

func table(entries ...pricing.Tariff) *staticTariffs {
	return &staticTariffs{table: pricing.NewTariffTable(entries)}
}

type fixture struct {
	svc     *Service
	repo    *fakeRepo
	tariffs *staticTariffs
	store   *memStore
}

func newFixture(t *testing.T, benefits staticBenefits, whitelist staticWhitelist) fixture {
	t.Helper()
	repo := newFakeRepo()
	tariffs := table(
		pricing.Tariff{BranchID: 1, ProductTypeID: 10, Price: dec("100")},
		pricing.Tariff{BranchID: 2, ProductTypeID: 10, Price: dec("200")},
		pricing.Tariff{BranchID: 1, ProductTypeID: 11, Price: dec("50")},
	)
	store := &memStore{}
	svc := &Service{
		Repo:          repo,
		Tariffs:       tariffs,
		Benefits:      benefits,
		Branches:      whitelist,
		Events:        &events.Bus{Store: store},
		DefaultMarkup: dec("10"),
	}
	return fixture{svc: svc, repo: repo, tariffs: tariffs, store: store}
}

func baseInput() Input {
	return Input{
		SenderID:    7,
		RecipientID: 8,
		BranchID:    1,
		Lines: []LineInput{
			{ProductTypeID: 10, Weight: dec("2")},
			{ProductTypeID: 11, Weight: dec("1"), UnitPrice: ptr(dec("30")), PriceLocked: true},
		},
	}
}

func TestQuotePricesLinesAndAppliesMarkup(t *testing.T) {
	f := newFixture(t, nil, nil)
	in := baseInput()
	in.Lines = append(in.Lines, LineInput{ProductTypeID: 99, Weight: dec("1")})

	q, err := f.svc.Quote(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, q.Lines, 3)
	requireDec(t, "100", q.Lines[0].UnitPrice)
	requireDec(t, "30", q.Lines[1].UnitPrice)
	require.True(t, q.Lines[1].PriceLocked)
	requireDec(t, "0", q.Lines[2].UnitPrice)
	require.Equal(t, 1, q.MissingTariffs)
	requireDec(t, "230", q.Subtotal)
	requireDec(t, "253", q.Total)
	require.Equal(t, pricing.BenefitNone, q.Benefit.Kind)
	require.Empty(t, f.store.topics)
}

func TestQuoteIgnoresUnitPriceOnUnlockedLine(t *testing.T) {
	f := newFixture(t, nil, nil)
	in := baseInput()
	in.Lines[0].UnitPrice = ptr(dec("1"))

	q, err := f.svc.Quote(context.Background(), in)
	require.NoError(t, err)
	requireDec(t, "100", q.Lines[0].UnitPrice)
	require.False(t, q.Lines[0].PriceLocked)
}

func TestQuoteBenefitSelection(t *testing.T) {
	discount := pricing.Candidate{ID: 1, Kind: pricing.BenefitDiscount, CounterpartyID: 7, Value: dec("5")}
	f := newFixture(t, staticBenefits{discount}, nil)
	q, err := f.svc.Quote(context.Background(), baseInput())
	require.NoError(t, err)
	require.Equal(t, pricing.BenefitDiscount, q.Benefit.Kind)
	requireDec(t, "95", q.Lines[0].UnitPrice)

	cashback := pricing.Candidate{ID: 2, Kind: pricing.BenefitCashback, CounterpartyID: 8, Value: dec("3")}
	f = newFixture(t, staticBenefits{discount, cashback}, nil)
	q, err = f.svc.Quote(context.Background(), baseInput())
	require.NoError(t, err)
	require.Equal(t, pricing.BenefitCashback, q.Benefit.Kind)
	require.Equal(t, pricing.PartyRecipient, q.Benefit.Target)
	requireDec(t, "100", q.Lines[0].UnitPrice)
}

func TestQuoteProductsRespectWhitelistAndCatalogue(t *testing.T) {
	f := newFixture(t, nil, staticWhitelist{1: pricing.NewWhitelist([]int64{500})})
	in := baseInput()
	in.Products = []ProductInput{{NomenclatureID: 500, Quantity: 2, Price: ptr(dec("99"))}}

	q, err := f.svc.Quote(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, q.Products, 1)
	require.Equal(t, "Box", q.Products[0].Name)
	requireDec(t, "3", q.Products[0].Price)
	requireDec(t, "6", q.Products[0].Sum)

	in.Products = []ProductInput{{NomenclatureID: 501, Quantity: 1}}
	_, err = f.svc.Quote(context.Background(), in)
	require.ErrorIs(t, err, pricing.ErrProductUnavailable)

	in.BranchID = 2
	in.Products = []ProductInput{{NomenclatureID: 501, Quantity: 1, Price: ptr(dec("4"))}}
	q, err = f.svc.Quote(context.Background(), in)
	require.NoError(t, err)
	requireDec(t, "4", q.Products[0].Price)

	in.Products = []ProductInput{{NomenclatureID: 999, Quantity: 1}}
	_, err = f.svc.Quote(context.Background(), in)
	require.ErrorIs(t, err, ErrUnknownNomenclature)
}

func TestQuoteValidatesInput(t *testing.T) {
	f := newFixture(t, nil, nil)
	in := baseInput()
	in.SenderID = 0
	_, err := f.svc.Quote(context.Background(), in)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestCreateStoresRecordAndEmits(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec, err := f.svc.Create(context.Background(), common.Principal{UserID: "u-1"}, baseInput())
	require.NoError(t, err)
	require.Equal(t, "GR-00000001", rec.Number)
	require.Equal(t, 1, rec.Version)
	require.Equal(t, "u-1", rec.CreatedBy)
	require.Len(t, rec.Lines, 2)
	requireDec(t, "253", rec.Total)
	require.Equal(t, []string{events.TopicGoodsCreated}, f.store.topics)

	got, err := f.svc.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.Number, got.Number)
}

func editInput(rec Record) Input {
	in := baseInput()
	in.Lines[0].ID = &rec.Lines[0].ID
	in.Lines[1].ID = &rec.Lines[1].ID
	in.Version = rec.Version
	return in
}

func TestUpdateDoesNotRepriceStoredLinesWithoutTrigger(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, common.Principal{}, baseInput())
	require.NoError(t, err)

	f.tariffs.table = pricing.NewTariffTable([]pricing.Tariff{{BranchID: 1, ProductTypeID: 10, Price: dec("120")}})

	updated, err := f.svc.Update(ctx, common.Principal{UserID: "u-2"}, rec.ID, editInput(rec))
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version)
	requireDec(t, "100", updated.Lines[0].UnitPrice)
	requireDec(t, "253", updated.Total)
	for _, l := range f.repo.lastSub.Lines {
		require.False(t, l.IsUpdated || l.IsCreated || l.IsDeleted)
	}
	require.Equal(t, []string{events.TopicGoodsCreated, events.TopicGoodsUpdated}, f.store.topics)
}

func TestUpdateBranchChangeRepricesUnlockedLines(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, common.Principal{}, baseInput())
	require.NoError(t, err)

	in := editInput(rec)
	in.BranchID = 2
	updated, err := f.svc.Update(ctx, common.Principal{}, rec.ID, in)
	require.NoError(t, err)
	require.Equal(t, int64(2), updated.BranchID)
	requireDec(t, "200", updated.Lines[0].UnitPrice)
	requireDec(t, "30", updated.Lines[1].UnitPrice)
	requireDec(t, "473", updated.Total)
	require.True(t, f.repo.lastSub.Lines[0].IsUpdated)
	require.False(t, f.repo.lastSub.Lines[1].IsUpdated)
}

func TestUpdateReplaysLineEdits(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, common.Principal{}, baseInput())
	require.NoError(t, err)

	in := editInput(rec)
	in.Lines = in.Lines[:1]
	in.Lines[0].Weight = dec("3")
	in.Lines = append(in.Lines, LineInput{ProductTypeID: 11, Weight: dec("2")})
	updated, err := f.svc.Update(ctx, common.Principal{}, rec.ID, in)
	require.NoError(t, err)

	sub := f.repo.lastSub
	require.Len(t, sub.Lines, 3)
	require.True(t, sub.Lines[0].IsUpdated)
	require.True(t, sub.Lines[1].IsDeleted)
	require.True(t, sub.Lines[2].IsCreated)
	require.Len(t, updated.Lines, 2)
	requireDec(t, "400", updated.Subtotal)

	in = editInput(updated)
	in.Lines[0].Weight = dec("3")
	in.Lines[1].PriceLocked = true
	in.Lines[1].UnitPrice = ptr(dec("10"))
	in.Lines[1].Weight = dec("2")
	updated, err = f.svc.Update(ctx, common.Principal{}, rec.ID, in)
	require.NoError(t, err)
	requireDec(t, "10", updated.Lines[1].UnitPrice)
	require.True(t, updated.Lines[1].PriceLocked)

	in = editInput(updated)
	in.Lines[0].Weight = dec("3")
	in.Lines[1].Weight = dec("2")
	in.Lines[1].PriceLocked = false
	updated, err = f.svc.Update(ctx, common.Principal{}, rec.ID, in)
	require.NoError(t, err)
	requireDec(t, "50", updated.Lines[1].UnitPrice)
	require.False(t, updated.Lines[1].PriceLocked)
}

func TestUpdatePartyChangeReselectsBenefit(t *testing.T) {
	discount := pricing.Candidate{ID: 1, Kind: pricing.BenefitDiscount, CounterpartyID: 9, Value: dec("5")}
	f := newFixture(t, staticBenefits{discount}, nil)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, common.Principal{}, baseInput())
	require.NoError(t, err)
	require.Equal(t, pricing.BenefitNone, rec.Benefit.Kind)

	in := editInput(rec)
	in.SenderID = 9
	updated, err := f.svc.Update(ctx, common.Principal{}, rec.ID, in)
	require.NoError(t, err)
	require.Equal(t, pricing.BenefitDiscount, updated.Benefit.Kind)
	requireDec(t, "95", updated.Lines[0].UnitPrice)
	requireDec(t, "30", updated.Lines[1].UnitPrice)
}

func TestUpdateProducts(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	in := baseInput()
	in.Products = []ProductInput{
		{NomenclatureID: 500, Quantity: 1},
		{NomenclatureID: 501, Quantity: 2, Price: ptr(dec("2"))},
	}
	rec, err := f.svc.Create(ctx, common.Principal{}, in)
	require.NoError(t, err)
	require.Len(t, rec.Products, 2)

	edit := editInput(rec)
	edit.Products = []ProductInput{
		{ID: &rec.Products[0].ID, NomenclatureID: 500, Quantity: 0},
		{ID: &rec.Products[1].ID, NomenclatureID: 501, Quantity: 2, Price: ptr(dec("5"))},
	}
	updated, err := f.svc.Update(ctx, common.Principal{}, rec.ID, edit)
	require.NoError(t, err)
	require.True(t, f.repo.lastSub.Products[0].IsDeleted)
	require.True(t, f.repo.lastSub.Products[1].IsUpdated)
	require.Len(t, updated.Products, 1)
	requireDec(t, "10", updated.Products[0].Sum)

	edit = editInput(updated)
	edit.Products = []ProductInput{{ID: &updated.Products[0].ID, NomenclatureID: 501, Quantity: 2}}
	_, err = f.svc.Update(ctx, common.Principal{}, rec.ID, edit)
	require.NoError(t, err)

	rec2, err := f.svc.Create(ctx, common.Principal{}, in)
	require.NoError(t, err)
	edit = editInput(rec2)
	edit.Products = []ProductInput{{ID: &rec2.Products[0].ID, NomenclatureID: 500, Quantity: 1, Price: ptr(dec("9"))}}
	_, err = f.svc.Update(ctx, common.Principal{}, rec2.ID, edit)
	require.ErrorIs(t, err, pricing.ErrProductNotEditable)
}

func TestUpdateErrors(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, common.Principal{}, baseInput())
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, common.Principal{}, uuid.New(), baseInput())
	require.ErrorIs(t, err, ErrNotFound)

	in := editInput(rec)
	in.Version = 5
	_, err = f.svc.Update(ctx, common.Principal{}, rec.ID, in)
	require.ErrorIs(t, err, ErrVersionConflict)

	in = editInput(rec)
	stray := uuid.New()
	in.Lines[0].ID = &stray
	_, err = f.svc.Update(ctx, common.Principal{}, rec.ID, in)
	require.ErrorIs(t, err, pricing.ErrLineNotFound)
}

func TestUpdateWaitsForRecordLock(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, common.Principal{}, baseInput())
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	f.svc.Locker = lock.Locker{R: rdb, RetryBackoff: 5 * time.Millisecond, MaxWait: 30 * time.Millisecond}

	require.NoError(t, mr.Set(lock.Key("goods", rec.ID.String()), "other-editor"))
	_, err = f.svc.Update(ctx, common.Principal{}, rec.ID, editInput(rec))
	require.ErrorIs(t, err, lock.ErrNotAcquired)

	mr.Del(lock.Key("goods", rec.ID.String()))
	updated, err := f.svc.Update(ctx, common.Principal{}, rec.ID, editInput(rec))
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version)
	require.False(t, mr.Exists(lock.Key("goods", rec.ID.String())))
}

func TestStoredRecordKeepsColumnPrecision(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.repo.scales = schemaScales(t)
	require.Equal(t, int32(3), f.repo.scales["goods_lines.weight"])
	require.Equal(t, int32(2), f.repo.scales["goods_records.total"])
	ctx := context.Background()

	in := baseInput()
	in.Lines[0].Weight = dec("1.2345")
	in.Lines[1].UnitPrice = ptr(dec("10.155"))
	_, err := f.svc.Create(ctx, common.Principal{}, in)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
	details := appErr.Details.(map[string]string)
	require.Equal(t, "scale", details["lines[0].weight"])
	require.Equal(t, "scale", details["lines[1].unit_price"])

	in.Lines[0].Weight = dec("1.235")
	in.Lines[1].Weight = dec("0.333")
	in.Lines[1].UnitPrice = ptr(dec("10.16"))
	in.MarkupPercent = ptr(dec("7.5"))
	rec, err := f.svc.Create(ctx, common.Principal{}, in)
	require.NoError(t, err)
	requireDec(t, "126.88", rec.Subtotal)
	requireDec(t, "136.40", rec.Total)

	got, err := f.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	requireDec(t, rec.Subtotal.String(), got.Subtotal)
	requireDec(t, rec.Total.String(), got.Total)
	require.Len(t, got.Lines, 2)
	for i, l := range got.Lines {
		requireDec(t, l.Weight.Mul(l.UnitPrice).String(), l.Sum)
		requireDec(t, rec.Lines[i].Sum.String(), l.Sum)
	}
}

func TestUpdateChangesLineNomenclature(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, common.Principal{}, baseInput())
	require.NoError(t, err)
	require.Equal(t, int64(0), rec.Lines[0].NomenclatureID)

	in := editInput(rec)
	in.Lines[0].NomenclatureID = 2
	updated, err := f.svc.Update(ctx, common.Principal{}, rec.ID, in)
	require.NoError(t, err)
	require.True(t, f.repo.lastSub.Lines[0].IsUpdated)
	require.False(t, f.repo.lastSub.Lines[1].IsUpdated)
	require.Equal(t, int64(2), updated.Lines[0].NomenclatureID)
	requireDec(t, "100", updated.Lines[0].UnitPrice)

	got, err := f.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), got.Lines[0].NomenclatureID)
}

func TestUpdateBranchChangeChecksStoredProducts(t *testing.T) {
	f := newFixture(t, nil, staticWhitelist{
		1: pricing.NewWhitelist([]int64{500}),
		2: pricing.NewWhitelist([]int64{501}),
	})
	ctx := context.Background()
	in := baseInput()
	in.Products = []ProductInput{{NomenclatureID: 500, Quantity: 1}}
	rec, err := f.svc.Create(ctx, common.Principal{}, in)
	require.NoError(t, err)

	edit := editInput(rec)
	edit.BranchID = 2
	edit.Products = []ProductInput{{ID: &rec.Products[0].ID, NomenclatureID: 500, Quantity: 1}}
	_, err = f.svc.Update(ctx, common.Principal{}, rec.ID, edit)
	require.ErrorIs(t, err, pricing.ErrProductUnavailable)

	got, err := f.svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.BranchID)

	edit.Products = nil
	updated, err := f.svc.Update(ctx, common.Principal{}, rec.ID, edit)
	require.NoError(t, err)
	require.Equal(t, int64(2), updated.BranchID)
	require.Empty(t, updated.Products)
	require.True(t, f.repo.lastSub.Products[0].IsDeleted)
}

func TestEventsNotifyAfterWriteCommits(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	var notified []string
	f.svc.Events.Notifiers = []events.Notifier{events.NotifierFunc(func(_ context.Context, ev events.Event) error {
		notified = append(notified, ev.Topic)
		return nil
	})}

	f.repo.commitErr = errors.New("commit failed")
	_, err := f.svc.Create(ctx, common.Principal{}, baseInput())
	require.ErrorContains(t, err, "commit failed")
	require.Equal(t, []string{events.TopicGoodsCreated}, f.store.topics)
	require.Empty(t, notified)

	f.repo.commitErr = nil
	rec, err := f.svc.Create(ctx, common.Principal{}, baseInput())
	require.NoError(t, err)
	require.Equal(t, []string{events.TopicGoodsCreated}, notified)

	f.repo.commitErr = errors.New("commit failed")
	_, err = f.svc.Update(ctx, common.Principal{}, rec.ID, editInput(rec))
	require.Error(t, err)
	require.Equal(t, []string{events.TopicGoodsCreated}, notified)

	f.repo.commitErr = nil
	f.svc.Events.Notifiers = append(f.svc.Events.Notifiers, events.NotifierFunc(func(context.Context, events.Event) error {
		return errors.New("notifier down")
	}))
	_, err = f.svc.Update(ctx, common.Principal{}, rec.ID, editInput(rec))
	require.NoError(t, err)
	require.Equal(t, []string{events.TopicGoodsCreated, events.TopicGoodsUpdated}, notified)
}

func TestNilServiceNotConfigured(t *testing.T) {
	var svc *Service
	_, err := svc.Quote(context.Background(), baseInput())
	require.EqualError(t, err, "goods service not configured")
}
