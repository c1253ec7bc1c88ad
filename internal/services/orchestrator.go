package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/walletverify/backend/internal/config"
	"github.com/walletverify/backend/internal/metrics"
	"github.com/walletverify/backend/internal/models"
	"github.com/walletverify/backend/internal/nlu"
)

// User-facing reply texts. The channel adapter renders these verbatim.
const (
	ReplyInvalidPhone = "Número inválido. Asegúrate de usar tu número registrado."
	ReplyThrottled    = "Demasiados mensajes. Espera un momento e intenta de nuevo."
	ReplyVerifyError  = "Error verificando código. Intenta nuevamente."
	ReplyAck          = "Recibí tu mensaje. Para proteger tu cuenta, te envié un código por WhatsApp. Responde: CONFIRMAR <código>"
	ReplyNoPending    = "Verificación OK, pero no encontré ninguna solicitud pendiente."
	ReplyExecuting    = "Código correcto ✅. Ejecutando tu solicitud. Te aviso cuando termine."
	ReplyCodeDenied   = "Código incorrecto o expirado. Pide uno nuevo escribiendo: INICIAR"

	ResultBalanceFmt    = "Tu saldo es: %.2f MXN"
	ResultTransferFmt   = "Transferencia de %.2f %s a cuenta %s completada."
	ResultMissingData   = "No pude detectar monto o cuenta destino. Ejemplo: 'Transferir 100.00 a 012345678901234567'."
	ResultInsufficient  = "Saldo insuficiente para completar la transferencia."
	ResultLedgerFailure = "Ocurrió un error procesando tu solicitud. Intenta más tarde."
	ResultUnknownIntent = "No entendí la solicitud. Ejemplos: 'Saldo' o 'Enviar 100 a 012345678901234567'."
)

// ExecLedger is the slice of the ledger the orchestrator needs: a
// transfer composable into the execution transaction plus a balance
// read.
type ExecLedger interface {
	GetBalance(ctx context.Context, userID string) (float64, error)
	TransferTx(ctx context.Context, tx *sql.Tx, payerID string, amount float64, destinationAccount, currency, concept, clientTxID string) (*models.Transaction, error)
}

// LookupProvider is the optional carrier/line-type lookup done before a
// challenge is started. Implemented by the Twilio client.
type LookupProvider interface {
	Lookup(ctx context.Context, phone string) (string, error)
}

// Orchestrator is the request-gating state machine: inbound text
// becomes a pending request, OTP approval releases the oldest pending
// request per phone, and execution happens exactly once per request id.
type Orchestrator struct {
	db       *sql.DB
	limiter  *RateLimiter
	users    *UserStore
	requests *PendingRequestStore
	lockout  *LockoutPolicy
	verify   VerifyProvider
	ledger   ExecLedger
	parser   nlu.Parser
	tasks    *TaskRunner
	cfg      *config.OTPConfig
	audit    *AuditLogger

	confirmPattern *regexp.Regexp
}

func NewOrchestrator(db *sql.DB, limiter *RateLimiter, users *UserStore,
	requests *PendingRequestStore, lockout *LockoutPolicy, verify VerifyProvider,
	ledger ExecLedger, parser nlu.Parser, tasks *TaskRunner, cfg *config.OTPConfig) *Orchestrator {
	return &Orchestrator{
		db:       db,
		limiter:  limiter,
		users:    users,
		requests: requests,
		lockout:  lockout,
		verify:   verify,
		ledger:   ledger,
		parser:   parser,
		tasks:    tasks,
		cfg:      cfg,
		audit:    NewAuditLogger(),
		confirmPattern: regexp.MustCompile(
			`(?i)^\s*` + regexp.QuoteMeta(cfg.ConfirmKeyword) + `\s+(\d{4,8})\s*$`),
	}
}

// HandleInbound processes one inbound channel message and returns the
// reply text. Collaborator failures never escape; they become replies.
func (o *Orchestrator) HandleInbound(ctx context.Context, rawFrom, body string) string {
	phone, err := NormalizePhone(rawFrom)
	if err != nil {
		metrics.InboundMessages.WithLabelValues("invalid_phone").Inc()
		return ReplyInvalidPhone
	}

	if err := o.limiter.Check("wa:"+phone, o.cfg.InboundPerMinute, o.cfg.RateLimitWindow); err != nil {
		log.Printf("[WEBHOOK] rate limited %s", phone)
		metrics.InboundMessages.WithLabelValues("throttled").Inc()
		return ReplyThrottled
	}

	if m := o.confirmPattern.FindStringSubmatch(body); m != nil {
		metrics.InboundMessages.WithLabelValues("confirmation").Inc()
		return o.HandleConfirmation(ctx, phone, m[1])
	}

	metrics.InboundMessages.WithLabelValues("request").Inc()
	return o.handleNewRequest(ctx, phone, body)
}

func (o *Orchestrator) handleNewRequest(ctx context.Context, phone, body string) string {
	user, err := o.users.GetOrCreateByPhone(ctx, phone)
	if err != nil {
		log.Printf("[WEBHOOK] resolving user %s: %v", phone, err)
		return ReplyVerifyError
	}

	pr, err := o.requests.Create(ctx, user.ID, phone, body)
	if err != nil {
		log.Printf("[WEBHOOK] creating pending request for %s: %v", phone, err)
		return ReplyVerifyError
	}
	log.Printf("[WEBHOOK] created pending request %s for %s", pr.ID, phone)

	// The INSERT above is committed; only now may the challenge start.
	userID := user.ID
	o.tasks.Go("lookup-and-verify", func(taskCtx context.Context) error {
		return o.lookupAndStartChallenge(taskCtx, userID, phone)
	})

	return ReplyAck
}

// lookupAndStartChallenge records a line-type lookup (when the provider
// supports it) and starts the OTP challenge, logging either outcome.
func (o *Orchestrator) lookupAndStartChallenge(ctx context.Context, userID, phone string) error {
	if lp, ok := o.verify.(LookupProvider); ok {
		lineType, err := lp.Lookup(ctx, phone)
		if err != nil {
			o.insertLookupLog(ctx, userID, phone, "", err.Error())
		} else {
			o.insertLookupLog(ctx, userID, phone, lineType, "")
		}
	}

	res, err := o.verify.Start(ctx, phone)
	if err != nil {
		o.insertVerifyLog(ctx, userID, phone, "", "error", err.Error())
		return err
	}
	o.insertVerifyLog(ctx, userID, phone, res.SID, res.Status, "")
	return nil
}

// HandleConfirmation runs the OTP-gated approval path: lockout guard,
// provider check, counter registration, then release of the oldest
// pending request for the phone.
func (o *Orchestrator) HandleConfirmation(ctx context.Context, phone, code string) string {
	user, err := o.users.GetOrCreateByPhone(ctx, phone)
	if err != nil {
		log.Printf("[VERIFY] resolving user %s: %v", phone, err)
		return ReplyVerifyError
	}

	if err := o.lockout.EnsureNotLocked(user); err != nil {
		minutes := int(math.Ceil(o.lockout.LockRemaining(user).Minutes()))
		return fmt.Sprintf("Demasiados intentos fallidos. Espera %d minutos e intenta de nuevo.", minutes)
	}

	chk, err := o.verify.Check(ctx, phone, code)
	if err != nil {
		log.Printf("[VERIFY] provider check failed for %s: %v", phone, err)
		o.insertVerifyLog(ctx, user.ID, phone, "", "error", err.Error())
		return ReplyVerifyError
	}
	o.insertVerifyLog(ctx, user.ID, phone, chk.SID, chk.Status, "")
	metrics.OTPChecks.WithLabelValues(chk.Status).Inc()

	// Counters stay consistent for every outcome, approved or not.
	o.lockout.RegisterResult(user, chk.Status)
	if err := o.users.SaveOTPState(ctx, user); err != nil {
		log.Printf("[VERIFY] saving otp state for %s: %v", phone, err)
	}

	if chk.Status != OTPApproved {
		return ReplyCodeDenied
	}

	pr, err := o.requests.OldestPending(ctx, phone)
	if err != nil {
		log.Printf("[VERIFY] querying oldest pending for %s: %v", phone, err)
		return ReplyVerifyError
	}
	if pr == nil {
		return ReplyNoPending
	}

	if err := o.requests.MarkApproved(ctx, pr.ID); err != nil {
		// A racing confirmation already claimed it.
		log.Printf("[VERIFY] approve conflict on request %s: %v", pr.ID, err)
		return ReplyNoPending
	}

	// The approved transition is committed; execution may start.
	requestID := pr.ID
	o.tasks.Go("execute-request", func(taskCtx context.Context) error {
		return o.ExecutePending(taskCtx, requestID)
	})

	return ReplyExecuting
}

// ExecutePending executes one approved request exactly once. The row
// lock plus status-guarded transitions make duplicate triggers no-ops,
// and the ledger call shares the transaction so the funds movement and
// the executed/failed transition commit atomically.
func (o *Orchestrator) ExecutePending(ctx context.Context, id string) error {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback()

	pr, err := o.requests.GetForUpdateTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if pr == nil {
		log.Printf("[EXEC] request %s not found", id)
		return nil
	}
	if pr.Status != models.RequestApproved {
		// Already executed, failed, or never approved.
		log.Printf("[EXEC] request %s in status %s, nothing to do", id, pr.Status)
		return nil
	}

	parsed, err := o.parser.Parse(ctx, pr.MessageText)
	if err != nil {
		return fmt.Errorf("parsing request text: %w", err)
	}

	timer := prometheus.NewTimer(metrics.ExecutionDuration.WithLabelValues(parsed.Intent.Name))
	defer timer.ObserveDuration()

	resultText, failed := o.runIntent(ctx, tx, pr, parsed)

	if failed {
		err = o.requests.MarkFailedTx(ctx, tx, pr.ID, resultText)
	} else {
		err = o.requests.MarkExecutedTx(ctx, tx, pr.ID, resultText)
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}

	status := models.RequestExecuted
	if failed {
		status = models.RequestFailed
	}
	metrics.Executions.WithLabelValues(parsed.Intent.Name, status).Inc()
	o.audit.LogExecution(pr.ID, parsed.Intent.Name, status)
	log.Printf("[EXEC] request %s %s: %s", pr.ID, status, resultText)
	return nil
}

// runIntent performs the recognized action and returns the reply text
// plus whether the request ends in the failed state.
func (o *Orchestrator) runIntent(ctx context.Context, tx *sql.Tx, pr *models.PendingRequest, parsed *nlu.Result) (string, bool) {
	switch parsed.Intent.Name {
	case nlu.IntentBalance:
		balance, err := o.ledger.GetBalance(ctx, pr.UserID)
		if err != nil {
			log.Printf("[EXEC] balance query failed for %s: %v", pr.UserID, err)
			return ResultLedgerFailure, true
		}
		return fmt.Sprintf(ResultBalanceFmt, balance), false

	case nlu.IntentTransfer:
		if parsed.Entities.Amount == nil || parsed.Entities.DestinationAccount == "" {
			return ResultMissingData, true
		}

		// Deterministic key: retries of the same request id replay the
		// same ledger operation instead of double-moving funds.
		clientTxID := "wa-" + pr.ID
		transaction, err := o.ledger.TransferTx(ctx, tx, pr.UserID,
			*parsed.Entities.Amount, parsed.Entities.DestinationAccount, "", "", clientTxID)
		if err != nil {
			switch {
			case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrPayerNotFound):
				return ResultInsufficient, true
			default:
				log.Printf("[EXEC] transfer failed for request %s: %v", pr.ID, err)
				return ResultLedgerFailure, true
			}
		}
		return fmt.Sprintf(ResultTransferFmt, transaction.Amount, transaction.Currency, transaction.DestinationAccount), false

	default:
		return ResultUnknownIntent, true
	}
}

func (o *Orchestrator) insertVerifyLog(ctx context.Context, userID, phone, sid, status, detail string) {
	_, err := o.db.ExecContext(ctx, `
		INSERT INTO verify_logs (user_id, phone, verify_sid, channel, status, detail, created_at)
		VALUES ($1, $2, $3, 'whatsapp', $4, $5, $6)
	`, userID, phone, sid, status, detail, time.Now().UTC())
	if err != nil {
		log.Printf("[VERIFY] writing verify log: %v", err)
	}
}

func (o *Orchestrator) insertLookupLog(ctx context.Context, userID, phone, lineType, detail string) {
	_, err := o.db.ExecContext(ctx, `
		INSERT INTO lookup_logs (user_id, phone, line_type, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, userID, phone, lineType, detail, time.Now().UTC())
	if err != nil {
		log.Printf("[VERIFY] writing lookup log: %v", err)
	}
}
