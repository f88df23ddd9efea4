package goods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/cargo-backoffice/internal/common"
	"github.com/noah-isme/cargo-backoffice/internal/db"
	"github.com/noah-isme/cargo-backoffice/internal/events"
	"github.com/noah-isme/cargo-backoffice/internal/lock"
	"github.com/noah-isme/cargo-backoffice/internal/obs"
	"github.com/noah-isme/cargo-backoffice/internal/pricing"
	"github.com/noah-isme/cargo-backoffice/internal/query"
)

// TariffSource provides the current tariff table.
type TariffSource interface {
	Table(ctx context.Context) (pricing.TariffTable, error)
}

// BenefitSource lists active benefits for a sender/recipient pair.
type BenefitSource interface {
	Candidates(ctx context.Context, senderID, recipientID int64) ([]pricing.Candidate, error)
}

// WhitelistSource returns the nomenclature available at a branch.
type WhitelistSource interface {
	Whitelist(ctx context.Context, branchID int64) (pricing.Whitelist, error)
}

// Locker serialises work on one key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service prices, stores and edits goods records. Every call builds its own
// pricing session against one snapshot of tariffs, benefits and whitelist.
type Service struct {
	Repo     Repository
	Tariffs  TariffSource
	Benefits BenefitSource
	Branches WhitelistSource
	Locker   Locker
	Events   *events.Bus
	Logger   zerolog.Logger

	FloorAtZero   bool
	DefaultMarkup decimal.Decimal
	LockTTL       time.Duration
	NewID         func() uuid.UUID
}

// FormatNumber renders the human-facing record number for a sequence value.
func FormatNumber(seq int64) string {
	return fmt.Sprintf("GR-%08d", seq)
}

func (s *Service) ready() error {
	if s == nil || s.Repo == nil || s.Tariffs == nil || s.Benefits == nil || s.Branches == nil {
		return errors.New("goods service not configured")
	}
	return nil
}

func (s *Service) newID() uuid.UUID {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.New()
}

// Quote evaluates in as a new record without storing anything.
func (s *Service) Quote(ctx context.Context, in Input) (Quote, error) {
	session, sub, err := s.buildNew(ctx, in)
	s.observe("quote", session, err)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Submission:     sub,
		BranchID:       session.Destination(),
		Benefit:        session.Benefit(),
		MissingTariffs: session.Stats().MissingTariff,
	}, nil
}

// Create prices and stores a new record and emits goods.created.
func (s *Service) Create(ctx context.Context, actor common.Principal, in Input) (Record, error) {
	session, sub, err := s.buildNew(ctx, in)
	if err != nil {
		s.observe("create", session, err)
		return Record{}, err
	}
	rec := Record{
		ID:            s.newID(),
		SenderID:      in.SenderID,
		RecipientID:   in.RecipientID,
		BranchID:      session.Destination(),
		MarkupPercent: sub.MarkupPercent,
		Benefit:       session.Benefit(),
		Subtotal:      sub.Subtotal,
		Total:         sub.Total,
		CreatedBy:     actor.UserID,
	}
	var created events.Event
	err = s.Repo.Create(ctx, &rec, sub, s.recordEvent(events.TopicGoodsCreated, &rec, &created))
	s.observe("create", session, err)
	if err != nil {
		return Record{}, err
	}
	s.dispatch(ctx, created)
	rec.Lines, rec.Products = surviving(sub)
	s.Logger.Info().Str("goods_id", rec.ID.String()).Str("number", rec.Number).Str("total", rec.Total.String()).Msg("goods_created")
	return rec, nil
}

// Update replays in over the stored record while holding the record lock and
// stores the resulting diff. A non-zero in.Version must match the stored one.
func (s *Service) Update(ctx context.Context, actor common.Principal, id uuid.UUID, in Input) (Record, error) {
	if err := s.ready(); err != nil {
		return Record{}, err
	}
	if err := common.ValidateStruct(in); err != nil {
		return Record{}, err
	}
	var (
		out     Record
		updated events.Event
	)
	err := s.withLock(ctx, id, func(ctx context.Context) error {
		rec, err := s.Repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if in.Version > 0 && in.Version != rec.Version {
			return ErrVersionConflict
		}
		session, sub, err := s.replay(ctx, rec, in)
		if err != nil {
			s.observe("update", session, err)
			return err
		}
		rec.SenderID = in.SenderID
		rec.RecipientID = in.RecipientID
		rec.BranchID = session.Destination()
		rec.MarkupPercent = sub.MarkupPercent
		rec.Benefit = session.Benefit()
		rec.Subtotal = sub.Subtotal
		rec.Total = sub.Total
		err = s.Repo.Update(ctx, &rec, sub, s.recordEvent(events.TopicGoodsUpdated, &rec, &updated))
		s.observe("update", session, err)
		if err != nil {
			return err
		}
		rec.Lines, rec.Products = surviving(sub)
		out = rec
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	s.dispatch(ctx, updated)
	s.Logger.Info().Str("goods_id", out.ID.String()).Str("actor", actor.UserID).Int("version", out.Version).Msg("goods_updated")
	return out, nil
}

// Get returns a stored record with its lines and products.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	if s == nil || s.Repo == nil {
		return Record{}, errors.New("goods service not configured")
	}
	return s.Repo.Get(ctx, id)
}

// List returns record headers matching p, newest first by default.
func (s *Service) List(ctx context.Context, p query.Params) ([]Record, int, error) {
	if s == nil || s.Repo == nil {
		return nil, 0, errors.New("goods service not configured")
	}
	clause, err := p.Compile(Columns, "g.created_at DESC, g.id DESC")
	if err != nil {
		return nil, 0, err
	}
	return s.Repo.List(ctx, clause)
}

type snapshot struct {
	tariffs    pricing.TariffTable
	candidates []pricing.Candidate
	whitelist  pricing.Whitelist
}

// load fetches reference data concurrently. Candidates are skipped when the
// parties are not going to be re-evaluated.
func (s *Service) load(ctx context.Context, in Input, withCandidates bool) (snapshot, error) {
	var snap snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.Tariffs.Table(gctx)
		if err != nil {
			return fmt.Errorf("load tariffs: %w", err)
		}
		snap.tariffs = t
		return nil
	})
	if withCandidates {
		g.Go(func() error {
			c, err := s.Benefits.Candidates(gctx, in.SenderID, in.RecipientID)
			if err != nil {
				return fmt.Errorf("load benefits: %w", err)
			}
			snap.candidates = c
			return nil
		})
	}
	g.Go(func() error {
		w, err := s.Branches.Whitelist(gctx, in.BranchID)
		if err != nil {
			return fmt.Errorf("load whitelist: %w", err)
		}
		snap.whitelist = w
		return nil
	})
	return snap, g.Wait()
}

func (s *Service) config(snap snapshot, branchID int64, benefit pricing.ActiveBenefit) pricing.SessionConfig {
	return pricing.SessionConfig{
		Tariffs:     snap.tariffs,
		BranchID:    branchID,
		Benefit:     benefit,
		Whitelist:   snap.whitelist,
		FloorAtZero: s.FloorAtZero,
		NewID:       s.newID,
	}
}

func (s *Service) buildNew(ctx context.Context, in Input) (*pricing.Session, pricing.Submission, error) {
	if err := s.ready(); err != nil {
		return nil, pricing.Submission{}, err
	}
	if err := common.ValidateStruct(in); err != nil {
		return nil, pricing.Submission{}, err
	}
	snap, err := s.load(ctx, in, true)
	if err != nil {
		return nil, pricing.Submission{}, err
	}
	benefit := pricing.SelectBenefit(in.SenderID, in.RecipientID, snap.candidates)
	session := pricing.NewSession(s.config(snap, in.BranchID, benefit))

	for i, li := range in.Lines {
		if _, err := session.AddLine(toLineInput(li)); err != nil {
			return session, pricing.Submission{}, fmt.Errorf("lines[%d]: %w", i, err)
		}
	}
	if err := s.addProducts(ctx, session, in.Products); err != nil {
		return session, pricing.Submission{}, err
	}
	markup := s.DefaultMarkup
	if in.MarkupPercent != nil {
		markup = *in.MarkupPercent
	}
	return session, session.Assemble(pricing.ModeCreate, markup), nil
}

// replay loads rec into an edit session and applies the difference between the
// stored state and in. Stored lines are only repriced by the edits that
// trigger it: destination change, discount change, product type change,
// weight change or price unlock. Moving the record to another branch also
// re-checks the products that remain against that branch's whitelist.
func (s *Service) replay(ctx context.Context, rec Record, in Input) (*pricing.Session, pricing.Submission, error) {
	partiesChanged := in.SenderID != rec.SenderID || in.RecipientID != rec.RecipientID
	snap, err := s.load(ctx, in, partiesChanged)
	if err != nil {
		return nil, pricing.Submission{}, err
	}
	session := pricing.LoadSession(s.config(snap, rec.BranchID, rec.Benefit), rec.Lines, rec.Products)
	session.SetDestination(in.BranchID)
	if partiesChanged {
		session.SelectParties(in.SenderID, in.RecipientID, snap.candidates)
	}

	if err := replayLines(session, rec.Lines, in.Lines); err != nil {
		return session, pricing.Submission{}, err
	}
	var added []ProductInput
	keep := make(map[uuid.UUID]bool, len(in.Products))
	stored := make(map[uuid.UUID]pricing.Product, len(rec.Products))
	for _, p := range rec.Products {
		stored[p.ID] = p
	}
	for i, pi := range in.Products {
		if pi.ID == nil {
			added = append(added, pi)
			continue
		}
		cur, ok := stored[*pi.ID]
		if !ok {
			return session, pricing.Submission{}, fmt.Errorf("products[%d]: %w", i, pricing.ErrProductNotFound)
		}
		keep[cur.ID] = true
		if pi.Quantity != cur.Quantity {
			if err := session.SetProductQuantity(cur.ID, pi.Quantity); err != nil {
				return session, pricing.Submission{}, fmt.Errorf("products[%d]: %w", i, err)
			}
		}
		if pi.Price != nil && !pi.Price.Equal(cur.Price) {
			if err := session.SetProductPrice(cur.ID, *pi.Price); err != nil {
				return session, pricing.Submission{}, fmt.Errorf("products[%d]: %w", i, err)
			}
		}
	}
	for _, p := range rec.Products {
		if !keep[p.ID] {
			if err := session.RemoveProduct(p.ID); err != nil {
				return session, pricing.Submission{}, err
			}
		}
	}
	if err := s.addProducts(ctx, session, added); err != nil {
		return session, pricing.Submission{}, err
	}
	if in.BranchID != rec.BranchID {
		if err := session.CheckProducts(); err != nil {
			return session, pricing.Submission{}, fmt.Errorf("products: %w", err)
		}
	}

	markup := rec.MarkupPercent
	if in.MarkupPercent != nil {
		markup = *in.MarkupPercent
	}
	return session, session.Assemble(pricing.ModeEdit, markup), nil
}

func replayLines(session *pricing.Session, stored []pricing.LineItem, inputs []LineInput) error {
	byID := make(map[uuid.UUID]pricing.LineItem, len(stored))
	for _, l := range stored {
		byID[l.ID] = l
	}
	keep := make(map[uuid.UUID]bool, len(inputs))
	var added []LineInput
	for i, li := range inputs {
		if li.ID == nil {
			added = append(added, li)
			continue
		}
		cur, ok := byID[*li.ID]
		if !ok {
			return fmt.Errorf("lines[%d]: %w", i, pricing.ErrLineNotFound)
		}
		keep[cur.ID] = true
		if err := replayLine(session, cur, li); err != nil {
			return fmt.Errorf("lines[%d]: %w", i, err)
		}
	}
	for _, l := range stored {
		if !keep[l.ID] {
			if err := session.RemoveLine(l.ID); err != nil {
				return err
			}
		}
	}
	for i, li := range added {
		if _, err := session.AddLine(toLineInput(li)); err != nil {
			return fmt.Errorf("new lines[%d]: %w", i, err)
		}
	}
	return nil
}

func replayLine(session *pricing.Session, cur pricing.LineItem, li LineInput) error {
	if !li.PriceLocked && cur.PriceLocked {
		if err := session.UnlockPrice(cur.ID); err != nil {
			return err
		}
	}
	if li.NomenclatureID != cur.NomenclatureID {
		if err := session.SetNomenclature(cur.ID, li.NomenclatureID); err != nil {
			return err
		}
	}
	if li.ProductTypeID != cur.ProductTypeID {
		if err := session.SetProductType(cur.ID, li.ProductTypeID); err != nil {
			return err
		}
	}
	if !li.Weight.Equal(cur.Weight) {
		if err := session.CommitWeight(cur.ID, li.Weight); err != nil {
			return err
		}
	}
	if li.PriceLocked && li.UnitPrice != nil && (!cur.PriceLocked || !li.UnitPrice.Equal(cur.UnitPrice)) {
		return session.SetUnitPrice(cur.ID, *li.UnitPrice)
	}
	return nil
}

func (s *Service) addProducts(ctx context.Context, session *pricing.Session, inputs []ProductInput) error {
	if len(inputs) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(inputs))
	for _, pi := range inputs {
		ids = append(ids, pi.NomenclatureID)
	}
	catalogue, err := s.Repo.Nomenclatures(ctx, ids)
	if err != nil {
		return err
	}
	for i, pi := range inputs {
		n, ok := catalogue[pi.NomenclatureID]
		if !ok {
			return fmt.Errorf("products[%d]: %w", i, ErrUnknownNomenclature)
		}
		price := n.Price
		if n.Editable && pi.Price != nil {
			price = *pi.Price
		}
		_, err := session.AddProduct(pricing.ProductInput{
			Name:           n.Name,
			NomenclatureID: n.ID,
			Price:          price,
			Quantity:       pi.Quantity,
			Editable:       n.Editable,
		})
		if err != nil {
			return fmt.Errorf("products[%d]: %w", i, err)
		}
	}
	return nil
}

func toLineInput(li LineInput) pricing.LineInput {
	out := pricing.LineInput{
		NomenclatureID: li.NomenclatureID,
		ProductTypeID:  li.ProductTypeID,
		Weight:         li.Weight,
	}
	if li.PriceLocked && li.UnitPrice != nil {
		price := *li.UnitPrice
		out.UnitPrice = &price
	}
	return out
}

func (s *Service) withLock(ctx context.Context, id uuid.UUID, fn func(context.Context) error) error {
	if s.Locker == nil {
		return fn(ctx)
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return s.Locker.WithLock(ctx, lock.Key("goods", id.String()), ttl, fn)
}

// recordEvent stores the event inside the write transaction. Notifiers only
// see it once the caller dispatches it after commit.
func (s *Service) recordEvent(topic string, rec *Record, out *events.Event) TxHook {
	return func(ctx context.Context, tx db.DBTX) error {
		if s.Events == nil {
			return nil
		}
		bus := s.Events
		if tx != nil {
			bus = bus.WithStore(events.PgStore{DB: tx})
		}
		ev, err := bus.Record(ctx, topic, rec.ID.String(), eventPayload(rec))
		if err != nil {
			return err
		}
		*out = ev
		return nil
	}
}

func eventPayload(rec *Record) map[string]any {
	return map[string]any{
		"id":           rec.ID,
		"number":       rec.Number,
		"branch_id":    rec.BranchID,
		"sender_id":    rec.SenderID,
		"recipient_id": rec.RecipientID,
		"subtotal":     rec.Subtotal,
		"total":        rec.Total,
		"version":      rec.Version,
	}
}

func (s *Service) dispatch(ctx context.Context, ev events.Event) {
	if s.Events == nil || ev.ID == uuid.Nil {
		return
	}
	if err := s.Events.Dispatch(ctx, ev); err != nil {
		s.Logger.Warn().Err(err).Str("topic", ev.Topic).Msg("goods_event_notify_failed")
	}
}

func (s *Service) observe(op string, session *pricing.Session, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	var st pricing.Stats
	if session != nil {
		st = session.Stats()
	}
	obs.ObservePricing(op, result, st.Repriced, st.LockedSkipped, st.MissingTariff)
}

func surviving(sub pricing.Submission) ([]pricing.LineItem, []pricing.Product) {
	lines := make([]pricing.LineItem, 0, len(sub.Lines))
	for _, l := range sub.Lines {
		if !l.IsDeleted {
			lines = append(lines, l.LineItem)
		}
	}
	products := make([]pricing.Product, 0, len(sub.Products))
	for _, p := range sub.Products {
		if !p.IsDeleted {
			products = append(products, p.Product)
		}
	}
	return lines, products
}
