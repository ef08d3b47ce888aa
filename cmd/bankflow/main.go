package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/bankflowhq/workflow-engine/internal/approval"
	"github.com/bankflowhq/workflow-engine/internal/banking"
	"github.com/bankflowhq/workflow-engine/internal/checkpoint"
	"github.com/bankflowhq/workflow-engine/internal/classifier"
	"github.com/bankflowhq/workflow-engine/internal/classifier/llm"
	"github.com/bankflowhq/workflow-engine/internal/classifier/rules"
	"github.com/bankflowhq/workflow-engine/internal/config"
	"github.com/bankflowhq/workflow-engine/internal/downstream"
	"github.com/bankflowhq/workflow-engine/internal/facade"
	"github.com/bankflowhq/workflow-engine/internal/graph"
	"github.com/bankflowhq/workflow-engine/internal/hil"
	"github.com/bankflowhq/workflow-engine/internal/logging"
	"github.com/bankflowhq/workflow-engine/internal/server"
	"github.com/bankflowhq/workflow-engine/internal/session"
	"github.com/bankflowhq/workflow-engine/internal/store/redisstore"
	"github.com/bankflowhq/workflow-engine/internal/store/sqlstore"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Format(cfg.Log.Format))

	var (
		checkpoints checkpoint.Store
		sessions    session.Store
		approvals   approval.Store
		closeStore  func() error
	)
	switch cfg.Storage.Backend {
	case "embedded":
		store, err := sqlstore.Open(cfg.Storage.PathOrURL)
		if err != nil {
			log.Fatalf("open embedded store: %v", err)
		}
		checkpoints, sessions, approvals = store, store.Sessions(), store.Approvals()
		closeStore = store.Close
		color.Blue("Storage: embedded (%s)", cfg.Storage.PathOrURL)
	case "shared-cache":
		store, err := redisstore.Open(cfg.Storage.PathOrURL)
		if err != nil {
			log.Fatalf("open shared-cache store: %v", err)
		}
		checkpoints, sessions, approvals = store, store.Sessions(), store.Approvals()
		closeStore = store.Close
		color.Blue("Storage: shared-cache (%s)", cfg.Storage.PathOrURL)
	default:
		color.Red("Error: unknown storage.backend %q", cfg.Storage.Backend)
		os.Exit(1)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("closing store", "error", err)
		}
	}()

	var cls classifier.Classifier = rules.New()
	if cfg.Classifier.Backend == "llm" {
		cls = classifier.WithFallback(llm.New(cfg.Classifier.APIKey, "", ""), rules.New(), logger)
		color.Blue("Classifier: llm (rules fallback)")
	} else {
		color.Blue("Classifier: rules")
	}

	ds := downstream.New(cfg.Downstream.BaseURL, time.Duration(cfg.Downstream.TimeoutMS)*time.Millisecond)

	// A configured rule expression replaces the built-in threshold predicate
	// of its gate.
	ruleEngine := graph.NewSelectorEngine()
	transferRule := hil.Or(hil.AmountAtLeast(cfg.HIL.Threshold), hil.NeedsApproval())
	if cfg.HIL.TransferRule != "" {
		p, err := graph.NewScriptedPredicate(ruleEngine, cfg.HIL.TransferRule)
		if err != nil {
			log.Fatalf("hil.transfer_rule: %v", err)
		}
		transferRule = p
		color.Blue("Transfer approval rule: %s", cfg.HIL.TransferRule)
	}
	loanRule := hil.Or(hil.AmountAtLeast(cfg.HIL.LoanThreshold), hil.NeedsApproval())
	if cfg.HIL.LoanRule != "" {
		p, err := graph.NewScriptedPredicate(ruleEngine, cfg.HIL.LoanRule)
		if err != nil {
			log.Fatalf("hil.loan_rule: %v", err)
		}
		loanRule = p
		color.Blue("Loan approval rule: %s", cfg.HIL.LoanRule)
	}

	transferGate := hil.New(hil.Config{
		NodeID:             banking.NodeMoneyTransferHIL,
		ApprovalMessage:    "Transfer requires approval",
		ThresholdPredicate: transferRule,
		AutoApprove:        cfg.HIL.AutoApprove,
		TimeoutSeconds:     cfg.HIL.TimeoutSeconds,
	}, approvals, checkpoints, sessions)

	loanGate := hil.New(hil.Config{
		NodeID:             banking.NodeLoanInquiryHIL,
		ApprovalMessage:    "Loan inquiry requires approval",
		ThresholdPredicate: loanRule,
		AutoApprove:        cfg.HIL.AutoApprove,
		TimeoutSeconds:     cfg.HIL.TimeoutSeconds,
	}, approvals, checkpoints, sessions)

	confirmGate := hil.New(hil.Config{
		NodeID:             banking.NodeConfirmationHIL,
		ApprovalMessage:    "This request needs confirmation before continuing",
		ThresholdPredicate: hil.NeedsApproval(),
		AutoApprove:        cfg.HIL.AutoApprove,
		TimeoutSeconds:     cfg.HIL.TimeoutSeconds,
	}, approvals, checkpoints, sessions)

	bankingCfg := banking.Config{
		Classifier:          cls,
		Downstream:          ds,
		TransferGate:        transferGate,
		LoanGate:            loanGate,
		ConfirmGate:         confirmGate,
		ConfidenceThreshold: cfg.Confidence.Threshold,
		TransferRule:        transferRule,
		LoanRule:            loanRule,
	}
	g, err := banking.Build(bankingCfg)
	if err != nil {
		log.Fatalf("build banking graph: %v", err)
	}

	engine := graph.NewEngine(g, checkpoints, logger)
	f := facade.New(engine, sessions, checkpoints, approvals, map[string]*hil.Gate{
		banking.NodeMoneyTransferHIL: transferGate,
		banking.NodeLoanInquiryHIL:   loanGate,
		banking.NodeConfirmationHIL:  confirmGate,
	}, logger)

	srv := server.New(f, logger)

	color.Cyan("bankflow workflow engine")
	color.White("Downstream: %s", cfg.Downstream.BaseURL)
	fmt.Println()
	color.Green("Listening on %s", cfg.Server.Addr)
	if err := srv.Run(cfg.Server.Addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
