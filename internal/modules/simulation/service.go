package simulation

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/quantfolio/backtester/internal/agents"
	"github.com/quantfolio/backtester/internal/events"
	"github.com/quantfolio/backtester/internal/modules/dataset"
	"github.com/quantfolio/backtester/internal/modules/estimation"
	"github.com/quantfolio/backtester/internal/modules/optimization"
)

// ServiceConfig groups everything one backtest needs.
type ServiceConfig struct {
	PanelPath      string   // panel file; takes precedence over HistoryDir
	HistoryDir     string   // per-ticker price databases, used when no panel file is set
	HistoryTickers []string // tickers to load from HistoryDir
	HistoryLimit   int      // bars per ticker, default 1000
	ModelPath      string   // optional pre-fitted model file; empty means train in process
	FeatureColumns []string
	TrainFraction  float64 // share of the calendar used to fit the model, default 0.8
	Simulation     Config
	Optimization   optimization.Settings
}

// Service loads the panel, prepares the prediction model and drives complete
// backtest runs, persisting the outcome either way.
type Service struct {
	loader   *dataset.Loader
	enricher *dataset.Enricher
	repo     *Repository
	events   *events.Manager
	cfg      ServiceConfig
	log      zerolog.Logger
}

// NewService creates a simulation service.
func NewService(repo *Repository, eventManager *events.Manager, cfg ServiceConfig, log zerolog.Logger) *Service {
	if cfg.TrainFraction <= 0 || cfg.TrainFraction >= 1 {
		cfg.TrainFraction = 0.8
	}
	return &Service{
		loader:   dataset.NewLoader(log),
		enricher: dataset.NewEnricher(log),
		repo:     repo,
		events:   eventManager,
		cfg:      cfg,
		log:      log.With().Str("component", "simulation_service").Logger(),
	}
}

// RunBacktest executes one full backtest: load, fit or load the model,
// simulate the trade window, persist. The run row is written up front so a
// failure still leaves an inspectable record.
func (s *Service) RunBacktest() (int64, *Result, error) {
	runID, err := s.repo.CreateRun(s.cfg.Simulation.InitialCapital, s.cfg.Simulation.TransactionCostPct)
	if err != nil {
		return 0, nil, err
	}
	s.events.Emit(events.RunStarted, "simulation", map[string]interface{}{"run_id": runID})

	result, err := s.execute()
	if err != nil {
		if markErr := s.repo.MarkFailed(runID, err); markErr != nil {
			s.log.Error().Err(markErr).Int64("run_id", runID).Msg("Failed to record run failure")
		}
		s.events.EmitError("simulation", err, map[string]interface{}{"run_id": runID})
		return runID, nil, err
	}

	if err := s.repo.SaveResult(runID, result); err != nil {
		return runID, nil, err
	}
	s.events.Emit(events.RunCompleted, "simulation", map[string]interface{}{
		"run_id":            runID,
		"steps":             len(result.History),
		"cumulative_return": result.Summary.CumulativeReturn,
	})
	return runID, result, nil
}

// execute performs the run without touching persistence.
func (s *Service) execute() (*Result, error) {
	panel, err := s.loadPanel()
	if err != nil {
		return nil, err
	}

	trainPanel, tradePanel, err := s.splitPanel(panel)
	if err != nil {
		return nil, err
	}

	agent, err := s.prepareAgent(trainPanel)
	if err != nil {
		return nil, err
	}

	estimator := estimation.New(agent, s.cfg.FeatureColumns, s.log)
	solver := optimization.NewSolver(s.cfg.Optimization, s.log)
	simulator := New(estimator, solver, s.cfg.Simulation, s.log)

	return simulator.Run(tradePanel)
}

// loadPanel reads the configured panel file, or builds one from the price
// history databases when no file is configured. File panels get return
// windows backfilled when the source carried none.
func (s *Service) loadPanel() (*dataset.Panel, error) {
	var panel *dataset.Panel
	var err error

	switch {
	case s.cfg.PanelPath != "":
		panel, err = s.loader.LoadFile(s.cfg.PanelPath)
		if err != nil {
			return nil, err
		}
		if panel.Len() == 0 {
			return nil, fmt.Errorf("panel %s holds no rows", s.cfg.PanelPath)
		}
		if len(panel.Rows()[panel.Len()-1].ReturnWindow) == 0 {
			panel, err = s.enricher.AttachReturnWindows(panel)
			if err != nil {
				return nil, err
			}
		}

	case s.cfg.HistoryDir != "" && len(s.cfg.HistoryTickers) > 0:
		panel, err = s.buildPanelFromHistory()
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("no panel source configured: set a panel file or a history directory with tickers")
	}

	s.events.Emit(events.PanelLoaded, "simulation", map[string]interface{}{
		"rows":    panel.Len(),
		"tickers": len(panel.Tickers()),
	})
	return panel, nil
}

// buildPanelFromHistory assembles a feature-complete panel straight from the
// per-ticker price databases.
func (s *Service) buildPanelFromHistory() (*dataset.Panel, error) {
	limit := s.cfg.HistoryLimit
	if limit <= 0 {
		limit = 1000
	}

	historyDB := dataset.NewHistoryDB(s.cfg.HistoryDir, s.log)
	series, err := historyDB.GetDailyBarsForAll(s.cfg.HistoryTickers, limit)
	if err != nil {
		return nil, err
	}
	return s.enricher.BuildPanel(series)
}

// splitPanel cuts the calendar into a training range and a trade range. The
// trade range starts at the last training date so the first trade step prices
// in from a date the model has already seen, without looking ahead.
func (s *Service) splitPanel(panel *dataset.Panel) (train, trade *dataset.Panel, err error) {
	calendar := panel.Calendar()
	if len(calendar) < 3 {
		return nil, nil, fmt.Errorf("calendar of %d dates is too short to split", len(calendar))
	}

	cut := int(math.Floor(float64(len(calendar)) * s.cfg.TrainFraction))
	if cut < 2 {
		cut = 2
	}
	if cut > len(calendar)-2 {
		cut = len(calendar) - 2
	}

	train = dataset.SplitByDate(panel, calendar[0], calendar[cut])
	trade = dataset.SplitByDate(panel, calendar[cut], calendar[len(calendar)-1])

	s.log.Info().
		Time("train_start", calendar[0]).
		Time("train_end", calendar[cut]).
		Time("trade_end", calendar[len(calendar)-1]).
		Msg("Split panel for backtest")
	return train, trade, nil
}

// prepareAgent loads a pre-fitted model when one is configured, otherwise
// fits a linear model on the training range.
func (s *Service) prepareAgent(train *dataset.Panel) (agents.Agent, error) {
	if s.cfg.ModelPath != "" {
		agent := s.agentForModelPath()
		if err := agent.Load(s.cfg.ModelPath); err != nil {
			return nil, fmt.Errorf("failed to load model %s: %w", s.cfg.ModelPath, err)
		}
		s.events.Emit(events.ModelLoaded, "simulation", map[string]interface{}{"path": s.cfg.ModelPath})
		return agent, nil
	}

	X, y, err := TrainingSet(train, s.cfg.FeatureColumns)
	if err != nil {
		return nil, err
	}

	agent := agents.NewLinearAgent()
	if err := agent.Train(X, y); err != nil {
		return nil, fmt.Errorf("failed to fit linear model: %w", err)
	}
	s.log.Info().Int("samples", len(y)).Msg("Fitted linear model")
	s.events.Emit(events.ModelFitted, "simulation", map[string]interface{}{"samples": len(y)})
	return agent, nil
}

// agentForModelPath picks the agent kind by model file name. Boosted-tree
// dumps are saved as *.model.json; everything else is a linear dump.
func (s *Service) agentForModelPath() agents.Agent {
	if strings.HasSuffix(s.cfg.ModelPath, ".model.json") {
		return agents.NewXGBAgent()
	}
	return agents.NewLinearAgent()
}

// TrainingSet builds the regression design from a panel: each sample pairs a
// row's features at date t with that ticker's realized return from t to the
// next calendar date.
func TrainingSet(panel *dataset.Panel, featureCols []string) ([][]float64, []float64, error) {
	calendar := panel.Calendar()
	if len(calendar) < 2 {
		return nil, nil, fmt.Errorf("training range of %d dates yields no forward returns", len(calendar))
	}

	var X [][]float64
	var y []float64
	for i := 0; i+1 < len(calendar); i++ {
		current := panel.Slice(calendar[i])
		next := indexByTic(panel.Slice(calendar[i+1]))

		for _, row := range current {
			nextRow, ok := next[row.Tic]
			if !ok || row.Close == 0 {
				continue
			}

			vec := make([]float64, len(featureCols))
			complete := true
			for j, col := range featureCols {
				v, present := row.Features[col]
				if !present || math.IsNaN(v) || math.IsInf(v, 0) {
					complete = false
					break
				}
				vec[j] = v
			}
			if !complete {
				continue
			}

			X = append(X, vec)
			y = append(y, nextRow.Close/row.Close-1)
		}
	}

	if len(y) == 0 {
		return nil, nil, fmt.Errorf("no usable training samples in range %s to %s",
			calendar[0].Format(dataset.DateLayout), calendar[len(calendar)-1].Format(dataset.DateLayout))
	}
	return X, y, nil
}

func indexByTic(rows []dataset.Row) map[string]dataset.Row {
	out := make(map[string]dataset.Row, len(rows))
	for _, row := range rows {
		out[row.Tic] = row
	}
	return out
}
