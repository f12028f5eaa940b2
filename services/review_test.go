package services

import (
	"database/sql/driver"
	"errors"
	"regexp"
	"strings"
	"testing"

	"conference-submission-api/config"
	"conference-submission-api/models"
)

var (
	updateSubmissionPattern = regexp.MustCompile(`UPDATE .submissions. SET .* WHERE submission_id = \? AND status = \? AND delete_at IS NULL`)
	countContributorsQuery  = regexp.MustCompile(`SELECT count\(\*\) FROM .contributors. WHERE submission_id = \?`)
	insertPaymentPattern    = regexp.MustCompile(`INSERT INTO .payments.`)
	countApprovedQuery      = regexp.MustCompile(`SELECT count\(\*\) FROM .submissions. WHERE submission_id = \? AND status = \?`)
	updatePaymentPattern    = regexp.MustCompile(`UPDATE .payments. SET .* WHERE submission_id = \? AND status = \?`)
	loadSubmissionQuery     = regexp.MustCompile(`SELECT .* FROM .submissions. WHERE submission_id = \?`)
	loadUsersQuery          = regexp.MustCompile(`SELECT .* FROM .users.`)
)

// notificationLoadSteps scripts the post-commit Preload("User") fetch that
// feeds the dispatcher for one applied submission.
func notificationLoadSteps(id int64) []*queryStep {
	return []*queryStep{
		{
			kind:    kindQuery,
			pattern: loadSubmissionQuery,
			columns: []string{"submission_id", "user_id", "title", "status"},
			rows:    [][]driver.Value{{id, int64(12), "Adaptive Mesh Refinement", "approved"}},
		},
		{
			kind:    kindQuery,
			pattern: loadUsersQuery,
			columns: []string{"user_id", "user_fname", "user_lname", "email"},
			rows:    [][]driver.Value{{int64(12), "Sari", "Wijaya", "sari@example.org"}},
		},
	}
}

type sendRecord struct {
	subject string
	html    string
	to      string
}

func newRecordingMailer(t *testing.T, sent *[]sendRecord) *NotificationDispatcher {
	t.Helper()
	return newTestDispatcher(
		func(to, subject, html, fromName string) (*config.MailAPIResponse, error) {
			*sent = append(*sent, sendRecord{subject: subject, html: html, to: to})
			return &config.MailAPIResponse{Success: true}, nil
		},
		func(to []string, subject, html string) error {
			t.Errorf("smtp fallback should not fire in this test")
			return nil
		},
	)
}

func TestApproveAbstractCreatesPaymentAndMailsInvoice(t *testing.T) {
	steps := []*queryStep{
		{kind: kindExec, pattern: updateSubmissionPattern, result: scriptedResult{rowsAffected: 1}},
		{
			kind:    kindQuery,
			pattern: countContributorsQuery,
			args:    []driver.Value{int64(5)},
			columns: []string{"count(*)"},
			rows:    [][]driver.Value{{int64(2)}},
		},
		{kind: kindExec, pattern: insertPaymentPattern, result: scriptedResult{lastInsertID: 31, rowsAffected: 1}},
	}
	steps = append(steps, notificationLoadSteps(5)...)

	gormDB, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	var sent []sendRecord
	svc := NewReviewService(gormDB, newRecordingMailer(t, &sent))

	result, err := svc.ApproveAbstract([]int{5}, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.AppliedIDs) != 1 || result.AppliedIDs[0] != 5 {
		t.Fatalf("expected applied [5], got %v", result.AppliedIDs)
	}
	if len(result.SkippedIDs) != 0 {
		t.Fatalf("expected no skips, got %v", result.SkippedIDs)
	}

	if len(sent) != 1 {
		t.Fatalf("expected one invoice mail, got %d", len(sent))
	}
	if sent[0].to != "sari@example.org" {
		t.Fatalf("invoice went to %q", sent[0].to)
	}
	// Two contributors plus the participant: 3 x 150,000.
	if !strings.Contains(sent[0].html, "450,000") {
		t.Fatalf("invoice body missing amount: %s", sent[0].html)
	}

	if state.commits != 1 {
		t.Fatalf("expected one commit, got %d", state.commits)
	}
	if err := state.verifyComplete(); err != nil {
		t.Fatal(err)
	}
}

func TestApproveAbstractSkipsNonPending(t *testing.T) {
	steps := []*queryStep{
		{kind: kindExec, pattern: updateSubmissionPattern, result: scriptedResult{rowsAffected: 0}},
	}

	gormDB, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	var sent []sendRecord
	svc := NewReviewService(gormDB, newRecordingMailer(t, &sent))

	result, err := svc.ApproveAbstract([]int{9}, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.AppliedIDs) != 0 {
		t.Fatalf("expected no applies, got %v", result.AppliedIDs)
	}
	if len(result.SkippedIDs) != 1 || result.SkippedIDs[0] != 9 {
		t.Fatalf("expected skipped [9], got %v", result.SkippedIDs)
	}
	if len(sent) != 0 {
		t.Fatalf("no mail expected for a skipped id, got %d", len(sent))
	}
	if err := state.verifyComplete(); err != nil {
		t.Fatal(err)
	}
}

func TestApproveAbstractDeduplicatesBatch(t *testing.T) {
	// Two mentions of the same id must produce exactly one conditional
	// update and one payment.
	steps := []*queryStep{
		{kind: kindExec, pattern: updateSubmissionPattern, result: scriptedResult{rowsAffected: 1}},
		{
			kind:    kindQuery,
			pattern: countContributorsQuery,
			columns: []string{"count(*)"},
			rows:    [][]driver.Value{{int64(0)}},
		},
		{kind: kindExec, pattern: insertPaymentPattern, result: scriptedResult{lastInsertID: 8, rowsAffected: 1}},
	}
	steps = append(steps, notificationLoadSteps(4)...)

	gormDB, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	var sent []sendRecord
	svc := NewReviewService(gormDB, newRecordingMailer(t, &sent))

	result, err := svc.ApproveAbstract([]int{4, 4}, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.AppliedIDs) != 1 {
		t.Fatalf("expected single apply, got %v", result.AppliedIDs)
	}
	if len(sent) != 1 {
		t.Fatalf("expected single invoice, got %d", len(sent))
	}
	if !strings.Contains(sent[0].html, "150,000") {
		t.Fatalf("solo submission should owe one fee: %s", sent[0].html)
	}
	if err := state.verifyComplete(); err != nil {
		t.Fatal(err)
	}
}

func TestApproveAbstractMixedBatch(t *testing.T) {
	steps := []*queryStep{
		// id 1: pending, applies.
		{kind: kindExec, pattern: updateSubmissionPattern, result: scriptedResult{rowsAffected: 1}},
		{
			kind:    kindQuery,
			pattern: countContributorsQuery,
			columns: []string{"count(*)"},
			rows:    [][]driver.Value{{int64(0)}},
		},
		{kind: kindExec, pattern: insertPaymentPattern, result: scriptedResult{lastInsertID: 9, rowsAffected: 1}},
		// id 2: already approved, conditional update touches nothing.
		{kind: kindExec, pattern: updateSubmissionPattern, result: scriptedResult{rowsAffected: 0}},
	}
	steps = append(steps, notificationLoadSteps(1)...)

	gormDB, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	var sent []sendRecord
	svc := NewReviewService(gormDB, newRecordingMailer(t, &sent))

	result, err := svc.ApproveAbstract([]int{1, 2}, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.AppliedIDs) != 1 || result.AppliedIDs[0] != 1 {
		t.Fatalf("expected applied [1], got %v", result.AppliedIDs)
	}
	if len(result.SkippedIDs) != 1 || result.SkippedIDs[0] != 2 {
		t.Fatalf("expected skipped [2], got %v", result.SkippedIDs)
	}
	if len(sent) != 1 {
		t.Fatalf("expected exactly one invoice, got %d", len(sent))
	}
	if err := state.verifyComplete(); err != nil {
		t.Fatal(err)
	}
}

func TestApproveAbstractRollsBackOnPaymentFailure(t *testing.T) {
	steps := []*queryStep{
		{kind: kindExec, pattern: updateSubmissionPattern, result: scriptedResult{rowsAffected: 1}},
		{
			kind:    kindQuery,
			pattern: countContributorsQuery,
			columns: []string{"count(*)"},
			rows:    [][]driver.Value{{int64(1)}},
		},
		{kind: kindExec, pattern: insertPaymentPattern, err: errors.New("payments table is full")},
	}

	gormDB, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	var sent []sendRecord
	svc := NewReviewService(gormDB, newRecordingMailer(t, &sent))

	if _, err := svc.ApproveAbstract([]int{5}, 42); err == nil {
		t.Fatal("expected batch failure")
	}
	if state.rollbacks != 1 {
		t.Fatalf("expected the batch to roll back, got %d rollbacks", state.rollbacks)
	}
	if len(sent) != 0 {
		t.Fatalf("no mail may leave a rolled-back batch, got %d", len(sent))
	}
	if err := state.verifyComplete(); err != nil {
		t.Fatal(err)
	}
}

func TestRejectAbstractSendsNoMail(t *testing.T) {
	steps := []*queryStep{
		{kind: kindExec, pattern: updateSubmissionPattern, result: scriptedResult{rowsAffected: 1}},
	}

	gormDB, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	mailer := newTestDispatcher(
		func(to, subject, html, fromName string) (*config.MailAPIResponse, error) {
			t.Error("rejection must not mail the participant")
			return &config.MailAPIResponse{Success: true}, nil
		},
		func(to []string, subject, html string) error {
			t.Error("rejection must not mail the participant")
			return nil
		},
	)
	svc := NewReviewService(gormDB, mailer)

	notes := "out of scope for this track"
	result, err := svc.RejectAbstract([]int{3}, 42, &notes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.AppliedIDs) != 1 || result.AppliedIDs[0] != 3 {
		t.Fatalf("expected applied [3], got %v", result.AppliedIDs)
	}
	if err := state.verifyComplete(); err != nil {
		t.Fatal(err)
	}
}

func TestApprovePaymentIssuesAcceptanceLetter(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: countApprovedQuery,
			columns: []string{"count(*)"},
			rows:    [][]driver.Value{{int64(1)}},
		},
		{kind: kindExec, pattern: updatePaymentPattern, result: scriptedResult{rowsAffected: 1}},
	}
	steps = append(steps, notificationLoadSteps(5)...)

	gormDB, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	var sent []sendRecord
	svc := NewReviewService(gormDB, newRecordingMailer(t, &sent))

	result, err := svc.ApprovePayment([]int{5}, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.AppliedIDs) != 1 || result.AppliedIDs[0] != 5 {
		t.Fatalf("expected applied [5], got %v", result.AppliedIDs)
	}
	if len(sent) != 1 {
		t.Fatalf("expected one acceptance letter, got %d", len(sent))
	}
	if sent[0].subject != "Letter of Acceptance" {
		t.Fatalf("unexpected subject %q", sent[0].subject)
	}
	if err := state.verifyComplete(); err != nil {
		t.Fatal(err)
	}
}

func TestApprovePaymentSkipsWhenAbstractNotApproved(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: countApprovedQuery,
			columns: []string{"count(*)"},
			rows:    [][]driver.Value{{int64(0)}},
		},
	}

	gormDB, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	var sent []sendRecord
	svc := NewReviewService(gormDB, newRecordingMailer(t, &sent))

	result, err := svc.ApprovePayment([]int{8}, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.SkippedIDs) != 1 || result.SkippedIDs[0] != 8 {
		t.Fatalf("expected skipped [8], got %v", result.SkippedIDs)
	}
	if len(sent) != 0 {
		t.Fatalf("no mail for a skip, got %d", len(sent))
	}
	if err := state.verifyComplete(); err != nil {
		t.Fatal(err)
	}
}

func TestApprovePaymentSkipsWhenPaymentNotPending(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: countApprovedQuery,
			columns: []string{"count(*)"},
			rows:    [][]driver.Value{{int64(1)}},
		},
		// Payment already reviewed; the conditional update misses.
		{kind: kindExec, pattern: updatePaymentPattern, result: scriptedResult{rowsAffected: 0}},
	}

	gormDB, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	var sent []sendRecord
	svc := NewReviewService(gormDB, newRecordingMailer(t, &sent))

	result, err := svc.ApprovePayment([]int{5}, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.SkippedIDs) != 1 || result.SkippedIDs[0] != 5 {
		t.Fatalf("expected skipped [5], got %v", result.SkippedIDs)
	}
	if len(sent) != 0 {
		t.Fatalf("a second approval must not re-send the letter, got %d", len(sent))
	}
	if err := state.verifyComplete(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateStatusOverridesTerminalState(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile(`SELECT .* FROM .submissions. WHERE delete_at IS NULL AND .?submission_id = \?`),
			columns: []string{"submission_id", "user_id", "title", "status"},
			rows:    [][]driver.Value{{int64(5), int64(12), "Adaptive Mesh Refinement", "rejected"}},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile(`UPDATE .submissions. SET .* WHERE .submission_id. = \?`),
			result:  scriptedResult{rowsAffected: 1},
		},
	}

	gormDB, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	svc := NewReviewService(gormDB, newTestDispatcher(nil, nil))

	// The override is exempt from the workflow preconditions: a rejected
	// (terminal) submission can still be reassigned.
	sub, err := svc.UpdateStatus(5, models.SubmissionApproved, nil, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Status != models.SubmissionApproved {
		t.Fatalf("status not reassigned: %q", sub.Status)
	}
	if sub.ReviewedBy == nil || *sub.ReviewedBy != 42 {
		t.Fatalf("reviewer not recorded: %v", sub.ReviewedBy)
	}
	if err := state.verifyComplete(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdatePaymentStatusReopensRejectedPayment(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile(`SELECT .* FROM .payments. WHERE payment_id = \?`),
			columns: []string{"payment_id", "submission_id", "amount", "status"},
			rows:    [][]driver.Value{{int64(3), int64(5), int64(300000), "rejected"}},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile(`UPDATE .payments. SET .* WHERE .payment_id. = \?`),
			result:  scriptedResult{rowsAffected: 1},
		},
	}

	gormDB, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	svc := NewReviewService(gormDB, newTestDispatcher(nil, nil))

	payment, err := svc.UpdatePaymentStatus(3, models.PaymentPending, nil, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment.Status != models.PaymentPending {
		t.Fatalf("payment not reopened: %q", payment.Status)
	}
	// The fixed amount survives the override untouched.
	if payment.Amount != 300000 {
		t.Fatalf("amount changed during override: %d", payment.Amount)
	}
	if err := state.verifyComplete(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateStatusRejectsInvalidTarget(t *testing.T) {
	gormDB, state, cleanup := newScriptedGormDB(t, nil)
	defer cleanup()

	svc := NewReviewService(gormDB, newTestDispatcher(nil, nil))

	if _, err := svc.UpdateStatus(1, "archived", nil, 42); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if err := state.verifyComplete(); err != nil {
		t.Fatal(err)
	}
}

func TestWorkflowStateOf(t *testing.T) {
	pendingPayment := &models.Payment{Status: models.PaymentPending}
	approvedPayment := &models.Payment{Status: models.PaymentApproved}
	rejectedPayment := &models.Payment{Status: models.PaymentRejected}

	cases := []struct {
		name    string
		sub     *models.Submission
		want    WorkflowState
		wantErr bool
	}{
		{"pending abstract", &models.Submission{Status: models.SubmissionPending}, StateSubmittedPending, false},
		{"rejected abstract", &models.Submission{Status: models.SubmissionRejected}, StateAbstractRejected, false},
		{"approved awaiting payment", &models.Submission{Status: models.SubmissionApproved, Payment: pendingPayment}, StateAbstractApprovedPaymentPending, false},
		{"payment approved", &models.Submission{Status: models.SubmissionApproved, Payment: approvedPayment}, StatePaymentApproved, false},
		{"payment rejected", &models.Submission{Status: models.SubmissionApproved, Payment: rejectedPayment}, StatePaymentRejected, false},
		{"payment on pending abstract", &models.Submission{Status: models.SubmissionPending, Payment: pendingPayment}, StateUnknown, true},
		{"payment on rejected abstract", &models.Submission{Status: models.SubmissionRejected, Payment: pendingPayment}, StateUnknown, true},
		{"approved abstract without payment", &models.Submission{Status: models.SubmissionApproved}, StateUnknown, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := WorkflowStateOf(tc.sub)
			if tc.wantErr {
				if !errors.Is(err, ErrIllegalStateCombination) {
					t.Fatalf("expected ErrIllegalStateCombination, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got state %v, want %v", got, tc.want)
			}
		})
	}
}
