package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/almariscal/criptohacienda/internal/models"
	"github.com/almariscal/criptohacienda/internal/pricing"
	"github.com/almariscal/criptohacienda/internal/repository"
	"github.com/almariscal/criptohacienda/internal/session"
	"github.com/almariscal/criptohacienda/utils"
)

// memoryRepo is an in-memory SessionRepository.
type memoryRepo struct {
	saved map[string]*models.SessionData
}

func (r *memoryRepo) Save(id string, data *models.SessionData) error {
	r.saved[id] = data
	return nil
}
func (r *memoryRepo) Load(id string) (*models.SessionData, error) { return r.saved[id], nil }
func (r *memoryRepo) Delete(id string) (bool, error) {
	_, ok := r.saved[id]
	delete(r.saved, id)
	return ok, nil
}
func (r *memoryRepo) Exists(id string) bool {
	_, ok := r.saved[id]
	return ok
}

var _ repository.SessionRepository = (*memoryRepo)(nil)

// flatProvider prices every asset at a fixed value.
type flatProvider struct{ price float64 }

func (p *flatProvider) Name() string { return "flat" }
func (p *flatProvider) FetchPriceEUR(ctx context.Context, asset string, at time.Time) (float64, error) {
	return p.price, nil
}

// stubImporter returns canned legs.
type stubImporter struct {
	legs []models.NormalizedTx
	err  error
}

func (s *stubImporter) Import(ctx context.Context, addresses []string, chains []string) ([]models.NormalizedTx, error) {
	return s.legs, s.err
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestService(evm, btc *stubImporter) *SessionService {
	oracle := pricing.NewOracle([]pricing.Provider{&flatProvider{price: 100}}, pricing.Config{}, quietLogger())
	return NewSessionService(
		session.NewStore(&memoryRepo{saved: make(map[string]*models.SessionData)}, quietLogger()),
		session.NewProcessingStore(),
		oracle,
		evm,
		btc,
		nil,
		quietLogger(),
	)
}

func waitForJob(t *testing.T, svc *SessionService, jobID string) *models.ProcessingJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job := svc.Job(jobID)
		if job != nil && (job.Status == models.JobCompleted || job.Status == models.JobError) {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Job %s did not finish in time", jobID)
	return nil
}

const tradeHistoryCSV = "Date(UTC),Pair,Side,Price,Executed,Amount,Fee,Fee Asset\n" +
	"2021-03-01 10:00:00,BTCEUR,BUY,40000,0.5,20000,0,\n"

func TestProcessStatementPublishesSession(t *testing.T) {
	svc := newTestService(&stubImporter{}, &stubImporter{})

	sessionID, data, err := svc.ProcessStatement(context.Background(), tradeHistoryCSV)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if sessionID == "" {
		t.Fatal("Expected a session id")
	}
	if len(data.Trades) != 1 {
		t.Errorf("Expected 1 trade, got %d", len(data.Trades))
	}
	if data.TotalInvestedEUR != 20000 {
		t.Errorf("Expected 20000 invested, got %v", data.TotalInvestedEUR)
	}

	if svc.Session(sessionID) == nil {
		t.Error("Expected the session retrievable after publishing")
	}
	if !svc.DeleteSession(sessionID) {
		t.Error("Expected delete to succeed")
	}
	if svc.Session(sessionID) != nil {
		t.Error("Expected the session gone after delete")
	}
}

func TestProcessStatementRejectsBadFormat(t *testing.T) {
	svc := newTestService(&stubImporter{}, &stubImporter{})

	if _, _, err := svc.ProcessStatement(context.Background(), "Foo,Bar\n1,2\n"); err == nil {
		t.Fatal("Expected a format error")
	}
}

func TestCombinedAnalysisCompletes(t *testing.T) {
	evm := &stubImporter{legs: []models.NormalizedTx{
		{ID: "evm-1", Timestamp: time.Date(2021, time.March, 2, 10, 0, 0, 0, time.UTC),
			Asset: "USDC", Amount: -1000, TxHash: "0xswap",
			Location: models.LocationWalletEVM, Type: models.TxTrade, SourceSystem: "evm"},
		{ID: "evm-2", Timestamp: time.Date(2021, time.March, 2, 10, 0, 0, 0, time.UTC),
			Asset: "WETH", Amount: 0.5, TxHash: "0xswap",
			Location: models.LocationWalletEVM, Type: models.TxTrade, SourceSystem: "evm"},
	}}
	svc := newTestService(evm, &stubImporter{})

	jobID := svc.StartCombinedAnalysis(CombinedRequest{
		StatementContent: tradeHistoryCSV,
		EVMAddresses:     []string{"0xabc"},
		Chains:           []string{"ethereum"},
	})

	job := waitForJob(t, svc, jobID)
	if job.Status != models.JobCompleted {
		t.Fatalf("Expected completed job, got %s (%s)", job.Status, job.Error)
	}
	for _, step := range job.Steps {
		if step.Status != models.JobCompleted {
			t.Errorf("Expected step %s completed, got %s", step.ID, step.Status)
		}
	}

	data := svc.Session(job.SessionID)
	if data == nil {
		t.Fatal("Expected the session published")
	}
	// One statement trade plus one paired wallet swap.
	if len(data.Trades) != 2 {
		t.Errorf("Expected 2 trades, got %d", len(data.Trades))
	}

	result := svc.Analysis(job.SessionID)
	if result == nil {
		t.Fatal("Expected a combined analysis result")
	}
	if len(result.Transactions) == 0 {
		t.Error("Expected reconciled transactions in the result")
	}
}

func TestCombinedAnalysisDropsReconciledMovements(t *testing.T) {
	// The exchange withdrawal re-appears on the BTC wallet five minutes
	// later, so it is an internal transfer and must not count as an
	// outflow.
	statement := "User_ID,UTC_Time,Account,Operation,Coin,Change,Remark\n" +
		"1,2021-05-01 09:00:00,Spot,Transaction Related,BTC,0.01,\n" +
		"1,2021-05-01 09:00:00,Spot,Transaction Related,EUR,-500,\n" +
		"1,2021-05-01 10:00:00,Spot,Withdraw,BTC,-0.005,\n"

	btc := &stubImporter{legs: []models.NormalizedTx{
		{ID: "btc-1", Timestamp: time.Date(2021, time.May, 1, 10, 5, 0, 0, time.UTC),
			Asset: "BTC", Amount: 0.00495,
			Location: models.LocationWalletBTC, Type: models.TxTransferIn,
			SourceSystem: "btc", TxHash: "deadbeef"},
	}}
	svc := newTestService(&stubImporter{}, btc)

	jobID := svc.StartCombinedAnalysis(CombinedRequest{
		StatementContent: statement,
		BTCAddresses:     []string{"bc1xyz"},
	})

	job := waitForJob(t, svc, jobID)
	if job.Status != models.JobCompleted {
		t.Fatalf("Expected completed job, got %s (%s)", job.Status, job.Error)
	}

	data := svc.Session(job.SessionID)
	for _, movement := range data.CashMovements {
		if movement.Asset == "BTC" {
			t.Errorf("Expected the reconciled BTC withdrawal dropped, got %+v", movement)
		}
	}
}

func TestCombinedAnalysisImportFailure(t *testing.T) {
	evm := &stubImporter{err: errors.New("explorer down")}
	svc := newTestService(evm, &stubImporter{})

	jobID := svc.StartCombinedAnalysis(CombinedRequest{
		EVMAddresses: []string{"0xabc"},
		Chains:       []string{"ethereum"},
	})

	job := waitForJob(t, svc, jobID)
	if job.Status != models.JobError {
		t.Fatalf("Expected error status, got %s", job.Status)
	}
	if job.Error == "" {
		t.Error("Expected the failure message recorded")
	}
	for _, step := range job.Steps {
		if step.ID == StepImportWallets && step.Status != models.JobError {
			t.Errorf("Expected the import step marked failed, got %s", step.Status)
		}
	}
}

func TestSummarizeGains(t *testing.T) {
	gains := []models.RealizedGain{
		{Timestamp: time.Date(2021, time.January, 5, 0, 0, 0, 0, time.UTC), ProceedsEUR: 100, CostBasisEUR: 60, FeesEUR: 1, GainEUR: 39},
		{Timestamp: time.Date(2021, time.January, 20, 0, 0, 0, 0, time.UTC), ProceedsEUR: 50, CostBasisEUR: 30, FeesEUR: 0, GainEUR: 20},
		{Timestamp: time.Date(2021, time.March, 1, 0, 0, 0, 0, time.UTC), ProceedsEUR: 10, CostBasisEUR: 5, FeesEUR: 0, GainEUR: 5},
	}

	summaries := SummarizeGains(gains, utils.PeriodMonth)
	if len(summaries) != 2 {
		t.Fatalf("Expected 2 monthly buckets, got %d", len(summaries))
	}

	january := summaries[0]
	if january.Disposals != 2 || january.GainEUR != 59 {
		t.Errorf("Expected 2 disposals with gain 59 in January, got %d / %v", january.Disposals, january.GainEUR)
	}
	if !january.PeriodStart.Equal(time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected January bucket start, got %v", january.PeriodStart)
	}

	yearly := SummarizeGains(gains, utils.PeriodYear)
	if len(yearly) != 1 || yearly[0].Disposals != 3 {
		t.Errorf("Expected one yearly bucket with 3 disposals, got %+v", yearly)
	}
}
