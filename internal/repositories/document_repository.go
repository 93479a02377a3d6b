package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contractor-backend/internal/apperr"
	"contractor-backend/internal/models"
	"contractor-backend/internal/numbering"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentColumns = `id, doc_type, number, title, description,
	customer_name, customer_email, customer_phone, customer_address,
	customer_id, project_id, source_document_id, status,
	subtotal, tax_rate, tax_amount, total_amount,
	due_date, sent_date, approved_date, paid_date, status_changed_at,
	notes, user_id, revision, artifact_key, artifact_revision, original_file_key,
	payment_provider, payment_reference, payment_status, payment_method, payment_last_event_id,
	created_at, updated_at`

// invalidateArtifact is appended to every UPDATE that changes what a rendered
// artifact shows, so the handle is cleared in the same statement.
const invalidateArtifact = `revision = revision + 1, artifact_key = '', artifact_revision = 0, updated_at = NOW()`

type DocumentRepository struct {
	DB *pgxpool.Pool
}

func NewDocumentRepository(db *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{DB: db}
}

// txSequence allocates numbers from document_counters inside a transaction.
// The upsert takes a row lock on the (type, year) counter, serialising
// concurrent creations until the surrounding transaction ends.
type txSequence struct {
	tx pgx.Tx
}

func (s txSequence) NextValue(ctx context.Context, scope numbering.Scope) (int64, error) {
	var n int64
	err := s.tx.QueryRow(ctx,
		`INSERT INTO document_counters (doc_type, year, last_value)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (doc_type, year)
		 DO UPDATE SET last_value = document_counters.last_value + 1
		 RETURNING last_value`,
		string(scope.Type), scope.Year,
	).Scan(&n)
	return n, err
}

// Create allocates the document number and inserts the header and its items
// in one transaction. doc.Number, ID and timestamps are filled in.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document, year int) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create document: %w", err)
	}
	defer tx.Rollback(ctx)

	number, err := numbering.Next(ctx, txSequence{tx}, doc.Type, year)
	if err != nil {
		return err
	}
	doc.Number = number

	err = tx.QueryRow(ctx,
		`INSERT INTO documents (doc_type, number, title, description,
			customer_name, customer_email, customer_phone, customer_address,
			customer_id, project_id, source_document_id, status,
			subtotal, tax_rate, tax_amount, total_amount,
			due_date, status_changed_at, notes, user_id, original_file_key, payment_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		 RETURNING id, revision, created_at, updated_at`,
		string(doc.Type), doc.Number, doc.Title, doc.Description,
		doc.Customer.Name, doc.Customer.Email, doc.Customer.Phone, doc.Customer.Address,
		doc.CustomerID, doc.ProjectID, doc.SourceDocumentID, string(doc.Status),
		doc.Subtotal, doc.TaxRate, doc.TaxAmount, doc.TotalAmount,
		doc.DueDate, doc.StatusChangedAt, doc.Notes, doc.UserID, doc.OriginalFileKey, paymentStatusParam(doc),
	).Scan(&doc.ID, &doc.Revision, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return mapWriteError("documents.Create", err)
	}

	if err := insertItems(ctx, tx, doc); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create document: %w", err)
	}
	return nil
}

func insertItems(ctx context.Context, tx pgx.Tx, doc *models.Document) error {
	for i := range doc.Items {
		item := &doc.Items[i]
		item.DocumentID = doc.ID
		err := tx.QueryRow(ctx,
			`INSERT INTO line_items (document_id, position, description, quantity, unit_price, total_price)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id`,
			doc.ID, item.Position, item.Description, item.Quantity, item.UnitPrice, item.TotalPrice,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("insert line item %d: %w", item.Position, err)
		}
	}
	return nil
}

func paymentStatusParam(doc *models.Document) *string {
	if doc.Payment == nil || doc.Payment.Status == "" {
		return nil
	}
	s := string(doc.Payment.Status)
	return &s
}

// Get loads a document with its items
func (r *DocumentRepository) Get(ctx context.Context, id int64) (*models.Document, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("documents.Get", "document %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %d: %w", id, err)
	}

	if doc.Items, err = r.items(ctx, id); err != nil {
		return nil, err
	}
	return doc, nil
}

// FindByPaymentReference resolves an invoice from a provider reference id
func (r *DocumentRepository) FindByPaymentReference(ctx context.Context, reference string) (*models.Document, error) {
	var id int64
	err := r.DB.QueryRow(ctx,
		`SELECT id FROM documents WHERE doc_type = 'invoice' AND payment_reference = $1
		 ORDER BY id DESC LIMIT 1`, reference,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("documents.FindByPaymentReference", "no invoice for payment reference %s", reference)
	}
	if err != nil {
		return nil, fmt.Errorf("find by payment reference: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *DocumentRepository) items(ctx context.Context, documentID int64) ([]models.LineItem, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT id, document_id, position, description, quantity, unit_price, total_price
		 FROM line_items WHERE document_id = $1 ORDER BY position`, documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	defer rows.Close()

	items := []models.LineItem{}
	for rows.Next() {
		var item models.LineItem
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.Position, &item.Description,
			&item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// List returns document headers (without items), newest first, and the total match count
func (r *DocumentRepository) List(ctx context.Context, f models.DocumentFilter) ([]*models.Document, int, error) {
	where := `WHERE doc_type = $1 AND user_id = $2`
	args := []any{string(f.Type), f.UserID}
	if f.Status != "" {
		where += statusFilter(f, &args)
	}
	if f.ProjectID != nil {
		args = append(args, *f.ProjectID)
		where += fmt.Sprintf(" AND project_id = $%d", len(args))
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM documents `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.DB.Query(ctx,
		`SELECT `+documentColumns+` FROM documents `+where+
			fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

// statusFilter matches stored status, or with f.Today the effective one
func statusFilter(f models.DocumentFilter, args *[]any) string {
	lazy := f.Today != nil && f.Type == models.DocumentTypeInvoice
	switch {
	case lazy && f.Status == models.StatusOverdue:
		*args = append(*args, *f.Today)
		return fmt.Sprintf(" AND (status = 'overdue' OR (status IN ('draft', 'sent') AND due_date < $%d))", len(*args))
	case lazy && (f.Status == models.StatusDraft || f.Status == models.StatusSent):
		*args = append(*args, string(f.Status), *f.Today)
		return fmt.Sprintf(" AND status = $%d AND (due_date IS NULL OR due_date >= $%d)", len(*args)-1, len(*args))
	default:
		*args = append(*args, string(f.Status))
		return fmt.Sprintf(" AND status = $%d", len(*args))
	}
}

// Update writes the editable fields of doc, bumping its revision and clearing
// the artifact handle. With replaceItems the item rows are replaced as well;
// totals on doc must already be recomputed from doc.Items. Payment columns are
// owned by reconciliation and never written here.
func (r *DocumentRepository) Update(ctx context.Context, doc *models.Document, replaceItems bool) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update document: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`UPDATE documents SET
			title = $2, description = $3,
			customer_name = $4, customer_email = $5, customer_phone = $6, customer_address = $7,
			project_id = $8, status = $9,
			subtotal = $10, tax_rate = $11, tax_amount = $12, total_amount = $13,
			due_date = $14, sent_date = $15, approved_date = $16, paid_date = $17,
			status_changed_at = $18, notes = $19, original_file_key = $20,
			`+invalidateArtifact+`
		 WHERE id = $1
		 RETURNING revision, updated_at`,
		doc.ID, doc.Title, doc.Description,
		doc.Customer.Name, doc.Customer.Email, doc.Customer.Phone, doc.Customer.Address,
		doc.ProjectID, string(doc.Status),
		doc.Subtotal, doc.TaxRate, doc.TaxAmount, doc.TotalAmount,
		doc.DueDate, doc.SentDate, doc.ApprovedDate, doc.PaidDate,
		doc.StatusChangedAt, doc.Notes, doc.OriginalFileKey,
	).Scan(&doc.Revision, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("documents.Update", "document %d not found", doc.ID)
	}
	if err != nil {
		return mapWriteError("documents.Update", err)
	}

	if replaceItems {
		if _, err := tx.Exec(ctx, `DELETE FROM line_items WHERE document_id = $1`, doc.ID); err != nil {
			return fmt.Errorf("clear line items: %w", err)
		}
		if err := insertItems(ctx, tx, doc); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update document: %w", err)
	}
	doc.ArtifactKey = ""
	doc.ArtifactRevision = 0
	return nil
}

// Delete removes the document and its items, returning the artifact key so the
// caller can remove the object.
func (r *DocumentRepository) Delete(ctx context.Context, id int64) (string, error) {
	var artifactKey string
	err := r.DB.QueryRow(ctx, `DELETE FROM documents WHERE id = $1 RETURNING artifact_key`, id).Scan(&artifactKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperr.NotFound("documents.Delete", "document %d not found", id)
	}
	if err != nil {
		return "", fmt.Errorf("delete document %d: %w", id, err)
	}
	return artifactKey, nil
}

// SetArtifact records the artifact of a revision unless the document has since changed
func (r *DocumentRepository) SetArtifact(ctx context.Context, id int64, key string, revision int) (bool, error) {
	tag, err := r.DB.Exec(ctx,
		`UPDATE documents SET artifact_key = $2, artifact_revision = $3
		 WHERE id = $1 AND revision = $3`,
		id, key, revision,
	)
	if err != nil {
		return false, fmt.Errorf("set artifact: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkPaymentSucceeded settles an invoice unless its payment already succeeded.
// The guard in the WHERE clause makes concurrent duplicate deliveries apply
// at most once. Returns the stale artifact key and whether the row changed.
func (r *DocumentRepository) MarkPaymentSucceeded(ctx context.Context, id int64, reference, eventID string, today time.Time) (string, bool, error) {
	var staleKey string
	err := r.DB.QueryRow(ctx,
		`WITH prev AS (
			SELECT id, artifact_key FROM documents WHERE id = $1 AND doc_type = 'invoice' FOR UPDATE
		 )
		 UPDATE documents d SET
			status = 'paid',
			status_changed_at = CASE WHEN d.status <> 'paid' THEN NOW() ELSE d.status_changed_at END,
			payment_status = 'succeeded',
			payment_method = $4,
			paid_date = COALESCE(d.paid_date, $3),
			payment_reference = CASE WHEN $2 <> '' THEN $2 ELSE d.payment_reference END,
			payment_last_event_id = $5,
			`+invalidateArtifact+`
		 FROM prev
		 WHERE d.id = prev.id AND d.payment_status IS DISTINCT FROM 'succeeded'
		 RETURNING prev.artifact_key`,
		id, reference, today, models.PaymentMethodCard, eventID,
	).Scan(&staleKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("mark payment succeeded: %w", err)
	}
	return staleKey, true, nil
}

// MarkPaymentFailed records a failed attempt; document status is untouched and
// a succeeded payment is never downgraded.
func (r *DocumentRepository) MarkPaymentFailed(ctx context.Context, id int64, reference, eventID string) (bool, error) {
	tag, err := r.DB.Exec(ctx,
		`UPDATE documents SET
			payment_status = 'failed',
			payment_reference = CASE WHEN $2 <> '' THEN $2 ELSE payment_reference END,
			payment_last_event_id = $3,
			updated_at = NOW()
		 WHERE id = $1 AND doc_type = 'invoice' AND payment_status IS DISTINCT FROM 'succeeded'`,
		id, reference, eventID,
	)
	if err != nil {
		return false, fmt.Errorf("mark payment failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetPaymentReference stores a new checkout reference and resets the payment to pending
func (r *DocumentRepository) SetPaymentReference(ctx context.Context, id int64, provider, reference string) error {
	tag, err := r.DB.Exec(ctx,
		`UPDATE documents SET
			payment_provider = $2, payment_reference = $3, payment_status = 'pending', updated_at = NOW()
		 WHERE id = $1 AND doc_type = 'invoice' AND payment_status IS DISTINCT FROM 'succeeded'`,
		id, provider, reference,
	)
	if err != nil {
		return fmt.Errorf("set payment reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("documents.SetPaymentReference", "invoice %d is already paid", id)
	}
	return nil
}

// MarkOverdue persists the overdue status for open invoices due before today
// and returns the ids moved along with their stale artifact keys.
func (r *DocumentRepository) MarkOverdue(ctx context.Context, today time.Time) (map[int64]string, error) {
	rows, err := r.DB.Query(ctx,
		`WITH due AS (
			SELECT id, artifact_key FROM documents
			WHERE doc_type = 'invoice' AND status IN ('draft', 'sent') AND due_date < $1
			FOR UPDATE
		 )
		 UPDATE documents d SET status = 'overdue', status_changed_at = NOW(), `+invalidateArtifact+`
		 FROM due WHERE d.id = due.id
		 RETURNING d.id, due.artifact_key`,
		today,
	)
	if err != nil {
		return nil, fmt.Errorf("mark overdue: %w", err)
	}
	defer rows.Close()

	moved := map[int64]string{}
	for rows.Next() {
		var id int64
		var key string
		if err := rows.Scan(&id, &key); err != nil {
			return nil, err
		}
		moved[id] = key
	}
	return moved, rows.Err()
}

// CountByStatus aggregates every stored document by type and status
func (r *DocumentRepository) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT doc_type, status, COUNT(*), COALESCE(SUM(total_amount), 0)
		 FROM documents GROUP BY doc_type, status ORDER BY doc_type, status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	var counts []models.StatusCount
	for rows.Next() {
		var docType, status string
		c := models.StatusCount{}
		if err := rows.Scan(&docType, &status, &c.Count, &c.Total); err != nil {
			return nil, err
		}
		c.Type = models.DocumentType(docType)
		c.Status = models.Status(status)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var (
		doc          models.Document
		docType      string
		status       string
		payProvider  string
		payReference string
		payStatus    *string
		payMethod    string
		payLastEvent string
	)
	err := row.Scan(
		&doc.ID, &docType, &doc.Number, &doc.Title, &doc.Description,
		&doc.Customer.Name, &doc.Customer.Email, &doc.Customer.Phone, &doc.Customer.Address,
		&doc.CustomerID, &doc.ProjectID, &doc.SourceDocumentID, &status,
		&doc.Subtotal, &doc.TaxRate, &doc.TaxAmount, &doc.TotalAmount,
		&doc.DueDate, &doc.SentDate, &doc.ApprovedDate, &doc.PaidDate, &doc.StatusChangedAt,
		&doc.Notes, &doc.UserID, &doc.Revision, &doc.ArtifactKey, &doc.ArtifactRevision, &doc.OriginalFileKey,
		&payProvider, &payReference, &payStatus, &payMethod, &payLastEvent,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Type = models.DocumentType(docType)
	doc.Status = models.Status(status)
	if doc.Type == models.DocumentTypeInvoice {
		doc.Payment = &models.PaymentRecord{
			Provider:          payProvider,
			ProviderReference: payReference,
			Method:            payMethod,
			LastEventID:       payLastEvent,
		}
		if payStatus != nil {
			doc.Payment.Status = models.PaymentStatus(*payStatus)
		}
	}
	return &doc, nil
}

// mapWriteError turns constraint violations into typed errors
func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperr.Conflict(op, "document number collision, please retry")
		case "23503":
			return apperr.Validation(op, "referenced record does not exist")
		case "23514":
			return apperr.Validation(op, "value violates a constraint: %s", pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
