package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wissensbasis/models"
)

// Standard-Identität, wenn der Client keinen Autor mitschickt.
const (
	DefaultAuthorEmail = "autor.demo@faq.local"
	DefaultAuthorName  = "Autor Demo"
)

// ErrNotFound wird zurückgegeben, wenn kein FAQ mit der angefragten ID existiert.
var ErrNotFound = errors.New("faq not found")

// ValidationError beschreibt eine fachlich ungültige Anfrage (HTTP 400).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// AttachmentInput ist die Eingabeform eines Anhangs. Einträge ohne Name
// oder URL werden kommentarlos verworfen.
type AttachmentInput struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// ShareInput ist die Eingabeform einer Freigabe. Einträge ohne E-Mail
// werden kommentarlos verworfen.
type ShareInput struct {
	Email      string `json:"email"`
	Permission string `json:"permission"`
	ExpiresAt  string `json:"expiresAt"`
}

// CreateFAQInput sind die Felder für das Anlegen eines FAQs.
type CreateFAQInput struct {
	Title       string            `json:"title"`
	Summary     *string           `json:"summary"`
	Content     string            `json:"content"`
	AuthorEmail string            `json:"authorEmail"`
	AuthorName  string            `json:"authorName"`
	TopicNames  []string          `json:"topicNames"`
	Status      string            `json:"status"`
	Attachments []AttachmentInput `json:"attachments"`
	ParentID    *string           `json:"parentId"`
	Shares      []ShareInput      `json:"shares"`
}

// UpdateFAQInput sind die Felder für ein Update. Nil-Pointer bedeuten
// "Feld nicht angefasst"; Status, Parent und die drei Sammlungen werden
// dagegen immer neu gesetzt (fehlende Liste = leere Liste).
type UpdateFAQInput struct {
	Title       *string           `json:"title"`
	Summary     *string           `json:"summary"`
	Content     *string           `json:"content"`
	Status      string            `json:"status"`
	TopicNames  []string          `json:"topicNames"`
	Attachments []AttachmentInput `json:"attachments"`
	ParentID    *string           `json:"parentId"`
	Shares      []ShareInput      `json:"shares"`
}

// ParentRef ist die verkürzte Darstellung des übergeordneten FAQs.
type ParentRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ChildCount trägt die Anzahl untergeordneter FAQs in der Antwort.
type ChildCount struct {
	Children int64 `json:"children"`
}

// FAQDetail ist die vollständige Antwortform: FAQ-Felder plus flachgeklopfte
// Topics, Anhänge, Freigaben (mit aufgelöstem Nutzer), Parent-Referenz und
// Kind-Zähler.
type FAQDetail struct {
	models.FAQ
	Topics []models.Topic `json:"topics"`
	Parent *ParentRef     `json:"parent"`
	Count  ChildCount     `json:"_count"`
}

// FAQService bündelt die Anwendungsfälle rund um FAQs. Alle mehrzeiligen
// Mutationen laufen in einer Transaktion.
type FAQService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewFAQService erstellt eine neue Instanz des FAQService.
func NewFAQService(db *gorm.DB, logger *zap.Logger) *FAQService {
	return &FAQService{DB: db, Logger: logger}
}

// NormalizeStatus bildet jeden Eingabewert auf DRAFT oder PUBLISHED ab.
func NormalizeStatus(value string) string {
	if value == models.StatusPublished {
		return models.StatusPublished
	}
	return models.StatusDraft
}

// NormalizePermission bildet jeden Eingabewert auf VIEW, EDIT oder ADMIN ab.
func NormalizePermission(value string) string {
	if value == models.PermissionEdit || value == models.PermissionAdmin {
		return value
	}
	return models.PermissionView
}

// parseExpiry akzeptiert ISO-8601-Zeitstempel mit oder ohne Uhrzeit.
func parseExpiry(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

// emailLocalPart liefert den Teil vor dem @ als Default-Namen.
func emailLocalPart(email string) string {
	if idx := strings.Index(email, "@"); idx > 0 {
		return email[:idx]
	}
	return email
}

// uniqueTopicNames entfernt Duplikate bei Erhalt der Reihenfolge, damit
// doppelte Namen in einer Anfrage nur eine Verknüpfung erzeugen.
func uniqueTopicNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	var out []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// sanitizeAttachments verwirft Einträge ohne Name oder URL und setzt
// MIME-Typ und Größe auf ihre Defaults.
func sanitizeAttachments(inputs []AttachmentInput) []models.Attachment {
	var out []models.Attachment
	for _, in := range inputs {
		if in.Name == "" || in.URL == "" {
			continue
		}
		mime := in.MimeType
		if mime == "" {
			mime = models.DefaultMimeType
		}
		size := in.Size
		if size < 0 {
			size = 0
		}
		out = append(out, models.Attachment{
			Name:     in.Name,
			URL:      in.URL,
			MimeType: mime,
			Size:     size,
		})
	}
	return out
}

// ensureUser legt einen Nutzer per E-Mail an oder aktualisiert den Namen
// des bestehenden. Einzelner konditionaler Insert, damit parallele Anfragen
// keine Duplikate erzeugen.
func ensureUser(tx *gorm.DB, email, name string) (models.User, error) {
	if name == "" {
		name = email
	}
	user := models.User{Email: email, Name: name, Role: models.RoleEditor}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"name": name}),
	}).Create(&user).Error; err != nil {
		return models.User{}, err
	}
	// Bei Konflikt füllt GORM die ID nicht; die gespeicherte Zeile holen.
	var stored models.User
	if err := tx.Where("email = ?", email).First(&stored).Error; err != nil {
		return models.User{}, err
	}
	return stored, nil
}

// ensureTopic legt ein Topic per Name an oder liefert das bestehende.
// Der Upsert-Schlüssel ist der exakte Name (case-sensitiv).
func ensureTopic(tx *gorm.DB, name string) (models.Topic, error) {
	topic := models.Topic{Name: name}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&topic).Error; err != nil {
		return models.Topic{}, err
	}
	var stored models.Topic
	if err := tx.Where("name = ?", name).First(&stored).Error; err != nil {
		return models.Topic{}, err
	}
	return stored, nil
}

// normalizeParentID behandelt fehlende und leere Parent-IDs gleich.
func normalizeParentID(id *string) *string {
	if id == nil || *id == "" {
		return nil
	}
	return id
}

// checkParent prüft, ob die angegebene Parent-ID auf ein bestehendes FAQ zeigt.
func checkParent(tx *gorm.DB, parentID string) error {
	var parent models.FAQ
	if err := tx.Select("id").First(&parent, "id = ?", parentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ValidationError{Message: "Parent FAQ not found"}
		}
		return err
	}
	return nil
}

// insertDependents legt Topic-Verknüpfungen, Anhänge und Freigaben für ein
// FAQ an. Wird von Create und Update nach dem jeweiligen Schreiben der
// FAQ-Zeile aufgerufen.
func insertDependents(tx *gorm.DB, faqID string, topicNames []string, attachments []AttachmentInput, shares []ShareInput) error {
	for _, name := range uniqueTopicNames(topicNames) {
		topic, err := ensureTopic(tx, name)
		if err != nil {
			return err
		}
		link := models.FAQTopic{FAQID: faqID, TopicID: topic.ID}
		if err := tx.Create(&link).Error; err != nil {
			return err
		}
	}

	for _, att := range sanitizeAttachments(attachments) {
		att.FAQID = faqID
		if err := tx.Create(&att).Error; err != nil {
			return err
		}
	}

	for _, in := range shares {
		if in.Email == "" {
			continue
		}
		recipient, err := ensureUser(tx, in.Email, emailLocalPart(in.Email))
		if err != nil {
			return err
		}
		share := models.Share{
			FAQID:      faqID,
			UserID:     recipient.ID,
			Permission: NormalizePermission(in.Permission),
			ExpiresAt:  parseExpiry(in.ExpiresAt),
		}
		if err := tx.Create(&share).Error; err != nil {
			return err
		}
	}
	return nil
}

// Create legt ein FAQ samt Topics, Anhängen und Freigaben atomar an.
func (s *FAQService) Create(ctx context.Context, in CreateFAQInput) (*FAQDetail, error) {
	if in.Title == "" || in.Content == "" {
		return nil, &ValidationError{Message: "title and content are required"}
	}

	var faqID string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		parentID := normalizeParentID(in.ParentID)
		if parentID != nil {
			if err := checkParent(tx, *parentID); err != nil {
				return err
			}
		}

		authorEmail := in.AuthorEmail
		if authorEmail == "" {
			authorEmail = DefaultAuthorEmail
		}
		authorName := in.AuthorName
		if authorName == "" {
			authorName = DefaultAuthorName
		}
		author, err := ensureUser(tx, authorEmail, authorName)
		if err != nil {
			return err
		}

		faq := models.FAQ{
			Title:    in.Title,
			Summary:  in.Summary,
			Content:  in.Content,
			Status:   NormalizeStatus(in.Status),
			ParentID: parentID,
			AuthorID: author.ID,
		}
		if err := tx.Create(&faq).Error; err != nil {
			return err
		}
		faqID = faq.ID

		return insertDependents(tx, faq.ID, in.TopicNames, in.Attachments, in.Shares)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("FAQ created", zap.String("id", faqID))
	return s.Get(ctx, faqID)
}

// Get liefert ein FAQ in der vollständigen Antwortform.
func (s *FAQService) Get(ctx context.Context, id string) (*FAQDetail, error) {
	db := s.DB.WithContext(ctx)

	var faq models.FAQ
	if err := db.Preload("Attachments").Preload("Shares.User").First(&faq, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if faq.Attachments == nil {
		faq.Attachments = []models.Attachment{}
	}
	if faq.Shares == nil {
		faq.Shares = []models.Share{}
	}

	detail := &FAQDetail{FAQ: faq, Topics: []models.Topic{}}

	if err := db.Model(&models.Topic{}).
		Joins("JOIN faq_topics ON faq_topics.topic_id = topics.id").
		Where("faq_topics.faq_id = ?", id).
		Find(&detail.Topics).Error; err != nil {
		return nil, err
	}

	if faq.ParentID != nil {
		var parent models.FAQ
		if err := db.Select("id", "title").First(&parent, "id = ?", *faq.ParentID).Error; err == nil {
			detail.Parent = &ParentRef{ID: parent.ID, Title: parent.Title}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if err := db.Model(&models.FAQ{}).
		Where("parent_id = ?", id).
		Count(&detail.Count.Children).Error; err != nil {
		return nil, err
	}

	return detail, nil
}

// List liefert FAQs gefiltert nach Freitext (Titel, Kurzfassung oder Inhalt,
// case-insensitiv) und Topic-Namen (mindestens ein Treffer, case-insensitiv).
// Beide Filter kombinieren sich per UND; sortiert nach letzter Änderung.
func (s *FAQService) List(ctx context.Context, q string, topicNames []string) ([]FAQDetail, error) {
	db := s.DB.WithContext(ctx)
	query := db.Model(&models.FAQ{})

	if q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where(
			"LOWER(title) LIKE ? OR LOWER(COALESCE(summary, '')) LIKE ? OR LOWER(content) LIKE ?",
			pattern, pattern, pattern,
		)
	}

	if len(topicNames) > 0 {
		lowered := make([]string, 0, len(topicNames))
		for _, name := range topicNames {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			lowered = append(lowered, strings.ToLower(name))
		}
		if len(lowered) > 0 {
			sub := s.DB.Model(&models.FAQTopic{}).
				Select("faq_topics.faq_id").
				Joins("JOIN topics ON topics.id = faq_topics.topic_id").
				Where("LOWER(topics.name) IN ?", lowered)
			query = query.Where("id IN (?)", sub)
		}
	}

	var faqs []models.FAQ
	if err := query.Order("updated_at DESC").Find(&faqs).Error; err != nil {
		return nil, err
	}

	out := make([]FAQDetail, 0, len(faqs))
	for _, faq := range faqs {
		detail, err := s.Get(ctx, faq.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, *detail)
	}
	return out, nil
}

// Update ersetzt die übergebenen Skalarfelder sowie sämtliche Topics,
// Anhänge und Freigaben des FAQs atomar.
func (s *FAQService) Update(ctx context.Context, id string, in UpdateFAQInput) (*FAQDetail, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var faq models.FAQ
		if err := tx.First(&faq, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		parentID := normalizeParentID(in.ParentID)
		if parentID != nil {
			if *parentID == id {
				return &ValidationError{Message: "Parent cannot be the same FAQ"}
			}
			if err := checkParent(tx, *parentID); err != nil {
				return err
			}
		}

		// Abhängige Sammlungen komplett entfernen, bevor neu eingefügt wird.
		if err := tx.Where("faq_id = ?", id).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("faq_id = ?", id).Delete(&models.Share{}).Error; err != nil {
			return err
		}
		if err := tx.Where("faq_id = ?", id).Delete(&models.FAQTopic{}).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"status":    NormalizeStatus(in.Status),
			"parent_id": parentID,
		}
		if in.Title != nil {
			updates["title"] = *in.Title
		}
		if in.Summary != nil {
			updates["summary"] = in.Summary
		}
		if in.Content != nil {
			updates["content"] = *in.Content
		}
		if err := tx.Model(&faq).Updates(updates).Error; err != nil {
			return err
		}

		return insertDependents(tx, id, in.TopicNames, in.Attachments, in.Shares)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("FAQ updated", zap.String("id", id))
	return s.Get(ctx, id)
}

// Delete entfernt Anhänge, Freigaben und Topic-Verknüpfungen und danach die
// FAQ-Zeile selbst, alles in einer Transaktion.
func (s *FAQService) Delete(ctx context.Context, id string) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var faq models.FAQ
		if err := tx.Select("id").First(&faq, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if err := tx.Where("faq_id = ?", id).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("faq_id = ?", id).Delete(&models.Share{}).Error; err != nil {
			return err
		}
		if err := tx.Where("faq_id = ?", id).Delete(&models.FAQTopic{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.FAQ{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}

	s.Logger.Info("FAQ deleted", zap.String("id", id))
	return nil
}

// ListTopics liefert alle bekannten Topics alphabetisch sortiert.
func (s *FAQService) ListTopics(ctx context.Context) ([]models.Topic, error) {
	var topics []models.Topic
	if err := s.DB.WithContext(ctx).Order("name ASC").Find(&topics).Error; err != nil {
		return nil, err
	}
	if topics == nil {
		topics = []models.Topic{}
	}
	return topics, nil
}
