// Package service orchestrates the processing pipeline: statement parsing,
// wallet imports, transfer reconciliation, gain calculation and portfolio
// timeline building, publishing the results as immutable sessions.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/almariscal/criptohacienda/internal/analysis"
	"github.com/almariscal/criptohacienda/internal/importer"
	"github.com/almariscal/criptohacienda/internal/models"
	"github.com/almariscal/criptohacienda/internal/notify"
	"github.com/almariscal/criptohacienda/internal/parser"
	"github.com/almariscal/criptohacienda/internal/portfolio"
	"github.com/almariscal/criptohacienda/internal/pricing"
	"github.com/almariscal/criptohacienda/internal/session"
	"github.com/almariscal/criptohacienda/internal/tax"
	"github.com/almariscal/criptohacienda/utils"
)

// Pipeline step ids, in execution order.
const (
	StepParseStatement = "parse_statement"
	StepImportWallets  = "import_wallets"
	StepReconcile      = "reconcile"
	StepPairWallet     = "pair_wallet_trades"
	StepComputeGains   = "compute_gains"
	StepBuildTimeline  = "build_timeline"
	StepPersist        = "persist"
)

var combinedSteps = []models.ProcessingStep{
	{ID: StepParseStatement, Label: "Parse exchange statement"},
	{ID: StepImportWallets, Label: "Import wallet transactions"},
	{ID: StepReconcile, Label: "Reconcile internal transfers"},
	{ID: StepPairWallet, Label: "Pair wallet trades"},
	{ID: StepComputeGains, Label: "Compute realized gains"},
	{ID: StepBuildTimeline, Label: "Build portfolio timeline"},
	{ID: StepPersist, Label: "Persist session"},
}

// CombinedRequest describes one combined-analysis run.
type CombinedRequest struct {
	StatementContent string   `json:"statement_content"`
	EVMAddresses     []string `json:"evm_addresses"`
	Chains           []string `json:"chains"`
	BTCAddresses     []string `json:"btc_addresses"`
}

// GainSummary aggregates realized gains over one reporting period.
type GainSummary struct {
	PeriodStart  time.Time `json:"period_start"`
	ProceedsEUR  float64   `json:"proceeds_eur"`
	CostBasisEUR float64   `json:"cost_basis_eur"`
	FeesEUR      float64   `json:"fees_eur"`
	GainEUR      float64   `json:"gain_eur"`
	Disposals    int       `json:"disposals"`
}

// SessionService runs processing pipelines and serves published sessions.
type SessionService struct {
	sessions  *session.Store
	jobs      *session.ProcessingStore
	prices    *pricing.Oracle
	evm       importer.WalletImporter
	btc       importer.WalletImporter
	publisher *notify.Publisher
	logger    *logrus.Logger

	mu       sync.Mutex
	analyses map[string]*analysis.Result
}

// NewSessionService wires the pipeline collaborators. publisher may be nil;
// session events are then skipped.
func NewSessionService(
	sessions *session.Store,
	jobs *session.ProcessingStore,
	prices *pricing.Oracle,
	evm importer.WalletImporter,
	btc importer.WalletImporter,
	publisher *notify.Publisher,
	logger *logrus.Logger,
) *SessionService {
	return &SessionService{
		sessions:  sessions,
		jobs:      jobs,
		prices:    prices,
		evm:       evm,
		btc:       btc,
		publisher: publisher,
		logger:    logger,
		analyses:  make(map[string]*analysis.Result),
	}
}

// ProcessStatement runs the synchronous statement-only pipeline: parse,
// compute gains and timeline, publish the session. Returns the new session
// id and its data.
func (s *SessionService) ProcessStatement(ctx context.Context, content string) (string, *models.SessionData, error) {
	trades, movements, err := parser.ParseStatement(content)
	if err != nil {
		return "", nil, err
	}

	s.prices.Reset()
	data, err := s.compute(ctx, trades, movements)
	if err != nil {
		return "", nil, err
	}

	sessionID := uuid.NewString()
	if err := s.sessions.Set(sessionID, data); err != nil {
		return "", nil, fmt.Errorf("failed to persist session: %w", err)
	}
	s.publishEvent(sessionID, data)
	return sessionID, data, nil
}

// StartCombinedAnalysis launches the combined statement + wallet pipeline in
// the background and returns the job id for polling.
func (s *SessionService) StartCombinedAnalysis(req CombinedRequest) string {
	jobID := uuid.NewString()
	steps := make([]models.ProcessingStep, len(combinedSteps))
	copy(steps, combinedSteps)
	for i := range steps {
		steps[i].Status = models.JobPending
	}
	s.jobs.Set(&models.ProcessingJob{
		ID:     jobID,
		Status: models.JobPending,
		Steps:  steps,
	})

	go s.runCombined(context.Background(), jobID, req)
	return jobID
}

// Job returns the current state of a background job, or nil when unknown.
func (s *SessionService) Job(jobID string) *models.ProcessingJob {
	return s.jobs.Get(jobID)
}

// SubscribeJob streams job snapshots; see ProcessingStore.Subscribe.
func (s *SessionService) SubscribeJob(jobID string) (<-chan models.ProcessingJob, func()) {
	return s.jobs.Subscribe(jobID)
}

// Session returns a published session, or nil when unknown.
func (s *SessionService) Session(id string) *models.SessionData {
	return s.sessions.Get(id)
}

// Analysis returns the combined-analysis result of a session, or nil for
// statement-only sessions.
func (s *SessionService) Analysis(sessionID string) *analysis.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyses[sessionID]
}

// DeleteSession removes a session and its analysis result. Returns whether
// the session existed.
func (s *SessionService) DeleteSession(id string) bool {
	s.mu.Lock()
	delete(s.analyses, id)
	s.mu.Unlock()
	return s.sessions.Delete(id)
}

// SummarizeGains groups a session's realized gains by reporting period.
// Periods are sorted ascending.
func SummarizeGains(gains []models.RealizedGain, period string) []GainSummary {
	buckets := make(map[time.Time]*GainSummary)
	for _, gain := range gains {
		start := utils.PeriodStart(gain.Timestamp, period)
		bucket := buckets[start]
		if bucket == nil {
			bucket = &GainSummary{PeriodStart: start}
			buckets[start] = bucket
		}
		bucket.ProceedsEUR += gain.ProceedsEUR
		bucket.CostBasisEUR += gain.CostBasisEUR
		bucket.FeesEUR += gain.FeesEUR
		bucket.GainEUR += gain.GainEUR
		bucket.Disposals++
	}

	summaries := make([]GainSummary, 0, len(buckets))
	for _, bucket := range buckets {
		summaries = append(summaries, *bucket)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].PeriodStart.Before(summaries[j].PeriodStart)
	})
	return summaries
}

func (s *SessionService) runCombined(ctx context.Context, jobID string, req CombinedRequest) {
	s.setJobStatus(jobID, models.JobRunning)

	fail := func(stepID string, err error) {
		s.logger.Errorf("job %s failed at %s: %v", jobID, stepID, err)
		s.jobs.Update(jobID, func(job *models.ProcessingJob) {
			job.Status = models.JobError
			job.Error = err.Error()
			setStep(job, stepID, models.JobError)
		})
	}

	// 1. Parse the exchange statement, when provided.
	s.setStep(jobID, StepParseStatement, models.JobRunning)
	var csvTrades []models.Trade
	var csvMovements []models.CashMovement
	if req.StatementContent != "" {
		var err error
		csvTrades, csvMovements, err = parser.ParseStatement(req.StatementContent)
		if err != nil {
			fail(StepParseStatement, err)
			return
		}
	}
	s.setStep(jobID, StepParseStatement, models.JobCompleted)

	// 2. Import wallet histories.
	s.setStep(jobID, StepImportWallets, models.JobRunning)
	var walletLegs []models.NormalizedTx
	evmAddresses := importer.CleanAddresses(req.EVMAddresses)
	if len(evmAddresses) > 0 {
		legs, err := s.evm.Import(ctx, evmAddresses, req.Chains)
		if err != nil {
			fail(StepImportWallets, err)
			return
		}
		walletLegs = append(walletLegs, legs...)
	}
	btcAddresses := importer.CleanAddresses(req.BTCAddresses)
	if len(btcAddresses) > 0 {
		legs, err := s.btc.Import(ctx, btcAddresses, nil)
		if err != nil {
			fail(StepImportWallets, err)
			return
		}
		walletLegs = append(walletLegs, legs...)
	}
	s.setStep(jobID, StepImportWallets, models.JobCompleted)

	// 3. Reconcile internal transfers over the unified stream.
	s.setStep(jobID, StepReconcile, models.JobRunning)
	combined := importer.FromStatement(csvTrades, csvMovements)
	combined = append(combined, walletLegs...)
	result := analysis.Run(combined)
	s.jobs.Update(jobID, func(job *models.ProcessingJob) {
		setStep(job, StepReconcile, models.JobCompleted)
		job.Messages = append(job.Messages,
			fmt.Sprintf("reconciled %d internal transfer pair(s)", result.ReconciledPairs))
	})

	// Exchange movements matched to a wallet counterpart are internal
	// transfers, not real in/outflows; drop them from the timeline input.
	keptMovements := filterReconciledMovements(csvMovements, result.Transactions)

	// 4. Pair the surviving wallet legs into synthetic trades.
	s.setStep(jobID, StepPairWallet, models.JobRunning)
	var reconciledWallet []models.NormalizedTx
	for _, tx := range result.Transactions {
		if tx.SourceSystem != "binance_csv" {
			reconciledWallet = append(reconciledWallet, tx)
		}
	}
	walletTrades, walletMovements := analysis.PairWalletTrades(reconciledWallet)
	s.setStep(jobID, StepPairWallet, models.JobCompleted)

	allTrades := append(append([]models.Trade(nil), csvTrades...), walletTrades...)
	allMovements := append(append([]models.CashMovement(nil), keptMovements...), walletMovements...)

	// 5-6. Gains and timeline.
	s.setStep(jobID, StepComputeGains, models.JobRunning)
	s.prices.Reset()
	engine := tax.NewEngine(s.prices)
	if err := engine.Process(ctx, allTrades); err != nil {
		fail(StepComputeGains, err)
		return
	}
	s.setStep(jobID, StepComputeGains, models.JobCompleted)

	s.setStep(jobID, StepBuildTimeline, models.JobRunning)
	builder := portfolio.NewBuilder(s.prices)
	snapshots, err := builder.Build(ctx, allTrades, allMovements)
	if err != nil {
		fail(StepBuildTimeline, err)
		return
	}
	s.setStep(jobID, StepBuildTimeline, models.JobCompleted)

	// 7. Publish the session atomically.
	s.setStep(jobID, StepPersist, models.JobRunning)
	data := &models.SessionData{
		Trades:             allTrades,
		RealizedGains:      engine.RealizedGains,
		Holdings:           engine.Holdings,
		CashMovements:      allMovements,
		TotalInvestedEUR:   engine.TotalInvestedEUR,
		TotalFeesEUR:       engine.TotalFeesEUR,
		TotalDepositedEUR:  builder.TotalDepositedEUR(),
		TotalWithdrawnEUR:  builder.TotalWithdrawnEUR(),
		PortfolioSnapshots: snapshots,
		MissingPrices:      s.prices.MissingAssets(),
	}
	sessionID := uuid.NewString()
	if err := s.sessions.Set(sessionID, data); err != nil {
		fail(StepPersist, fmt.Errorf("failed to persist session: %w", err))
		return
	}
	s.mu.Lock()
	s.analyses[sessionID] = result
	s.mu.Unlock()

	s.jobs.Update(jobID, func(job *models.ProcessingJob) {
		setStep(job, StepPersist, models.JobCompleted)
		job.Status = models.JobCompleted
		job.SessionID = sessionID
	})
	s.publishEvent(sessionID, data)
	s.logger.Infof("job %s completed, session %s published", jobID, sessionID)
}

// compute runs gains and timeline over parsed statement output.
func (s *SessionService) compute(ctx context.Context, trades []models.Trade, movements []models.CashMovement) (*models.SessionData, error) {
	engine := tax.NewEngine(s.prices)
	if err := engine.Process(ctx, trades); err != nil {
		return nil, err
	}

	builder := portfolio.NewBuilder(s.prices)
	snapshots, err := builder.Build(ctx, trades, movements)
	if err != nil {
		return nil, err
	}

	return &models.SessionData{
		Trades:             trades,
		RealizedGains:      engine.RealizedGains,
		Holdings:           engine.Holdings,
		CashMovements:      movements,
		TotalInvestedEUR:   engine.TotalInvestedEUR,
		TotalFeesEUR:       engine.TotalFeesEUR,
		TotalDepositedEUR:  builder.TotalDepositedEUR(),
		TotalWithdrawnEUR:  builder.TotalWithdrawnEUR(),
		PortfolioSnapshots: snapshots,
		MissingPrices:      s.prices.MissingAssets(),
	}, nil
}

// filterReconciledMovements drops the cash movements whose statement leg
// was retyped by the transfer reconciler.
func filterReconciledMovements(movements []models.CashMovement, reconciled []models.NormalizedTx) []models.CashMovement {
	neutralized := make(map[string]struct{})
	for _, tx := range reconciled {
		if tx.Type == models.TxOther && tx.SourceSystem == "binance_csv" {
			neutralized[tx.ID] = struct{}{}
		}
	}

	kept := make([]models.CashMovement, 0, len(movements))
	for i, movement := range movements {
		if _, ok := neutralized[importer.StatementMovementID(i)]; ok {
			continue
		}
		kept = append(kept, movement)
	}
	return kept
}

func (s *SessionService) publishEvent(sessionID string, data *models.SessionData) {
	if s.publisher == nil {
		return
	}
	event := notify.SessionEvent{
		SessionID:     sessionID,
		Status:        models.JobCompleted,
		Trades:        len(data.Trades),
		RealizedGains: len(data.RealizedGains),
		MissingPrices: data.MissingPrices,
		CompletedAt:   time.Now().UTC(),
	}
	if err := s.publisher.PublishSessionEvent(event); err != nil {
		s.logger.Errorf("failed to publish session event for %s: %v", sessionID, err)
	}
}

func (s *SessionService) setJobStatus(jobID, status string) {
	s.jobs.Update(jobID, func(job *models.ProcessingJob) {
		job.Status = status
	})
}

func (s *SessionService) setStep(jobID, stepID, status string) {
	s.jobs.Update(jobID, func(job *models.ProcessingJob) {
		setStep(job, stepID, status)
	})
}

func setStep(job *models.ProcessingJob, stepID, status string) {
	for i := range job.Steps {
		if job.Steps[i].ID == stepID {
			job.Steps[i].Status = status
			return
		}
	}
}
