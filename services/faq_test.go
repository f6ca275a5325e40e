package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"wissensbasis/models"
)

func newTestService(t *testing.T) *FAQService {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Topic{},
		&models.FAQ{},
		&models.FAQTopic{},
		&models.Attachment{},
		&models.Share{},
	))
	return NewFAQService(db, zap.NewNop())
}

func strPtr(s string) *string {
	return &s
}

func TestCreateRequiresTitleAndContent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateFAQInput{Content: "nur Inhalt"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = svc.Create(ctx, CreateFAQInput{Title: "nur Titel"})
	require.ErrorAs(t, err, &verr)

	var count int64
	require.NoError(t, svc.DB.Model(&models.FAQ{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateNormalizesStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := map[string]string{
		"PUBLISHED": models.StatusPublished,
		"published": models.StatusDraft,
		"DRAFT":     models.StatusDraft,
		"unsinn":    models.StatusDraft,
		"":          models.StatusDraft,
	}
	for input, want := range cases {
		faq, err := svc.Create(ctx, CreateFAQInput{
			Title:   "Status " + input,
			Content: "Inhalt",
			Status:  input,
		})
		require.NoError(t, err)
		assert.Equal(t, want, faq.Status, "input %q", input)
	}
}

func TestCreateDefaultsAuthor(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	faq, err := svc.Create(ctx, CreateFAQInput{Title: "T", Content: "C"})
	require.NoError(t, err)

	var author models.User
	require.NoError(t, svc.DB.First(&author, "id = ?", faq.AuthorID).Error)
	assert.Equal(t, DefaultAuthorEmail, author.Email)
	assert.Equal(t, DefaultAuthorName, author.Name)
	assert.Equal(t, models.RoleEditor, author.Role)
}

func TestCreateRejectsUnknownParent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateFAQInput{
		Title:    "Kind",
		Content:  "C",
		ParentID: strPtr(uuid.NewString()),
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Parent FAQ not found", verr.Message)

	var count int64
	require.NoError(t, svc.DB.Model(&models.FAQ{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateWithParentAndChildCount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	parent, err := svc.Create(ctx, CreateFAQInput{Title: "Eltern", Content: "C"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), parent.Count.Children)

	child, err := svc.Create(ctx, CreateFAQInput{
		Title:    "Kind",
		Content:  "C",
		ParentID: strPtr(parent.ID),
	})
	require.NoError(t, err)
	require.NotNil(t, child.Parent)
	assert.Equal(t, parent.ID, child.Parent.ID)
	assert.Equal(t, "Eltern", child.Parent.Title)

	reloaded, err := svc.Get(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reloaded.Count.Children)
}

func TestCreateCollapsesDuplicateTopicNames(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	faq, err := svc.Create(ctx, CreateFAQInput{
		Title:      "Passwort zurücksetzen",
		Content:    "Schritte...",
		TopicNames: []string{"Security", "Security"},
	})
	require.NoError(t, err)
	require.Len(t, faq.Topics, 1)
	assert.Equal(t, "Security", faq.Topics[0].Name)

	var links int64
	require.NoError(t, svc.DB.Model(&models.FAQTopic{}).Where("faq_id = ?", faq.ID).Count(&links).Error)
	assert.Equal(t, int64(1), links)
}

func TestTopicGetOrCreateIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateFAQInput{Title: "A", Content: "C", TopicNames: []string{"Netzwerk"}})
	require.NoError(t, err)
	second, err := svc.Create(ctx, CreateFAQInput{Title: "B", Content: "C", TopicNames: []string{"Netzwerk"}})
	require.NoError(t, err)

	var topics int64
	require.NoError(t, svc.DB.Model(&models.Topic{}).Count(&topics).Error)
	assert.Equal(t, int64(1), topics)

	require.Len(t, first.Topics, 1)
	require.Len(t, second.Topics, 1)
	assert.Equal(t, first.Topics[0].ID, second.Topics[0].ID)
}

func TestCreateDropsInvalidAttachments(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	faq, err := svc.Create(ctx, CreateFAQInput{
		Title:   "T",
		Content: "C",
		Attachments: []AttachmentInput{
			{Name: "", URL: "http://x"},
			{Name: "ohne-url", URL: ""},
			{Name: "doc", URL: "http://x"},
		},
	})
	require.NoError(t, err)
	require.Len(t, faq.Attachments, 1)
	assert.Equal(t, "doc", faq.Attachments[0].Name)
	assert.Equal(t, models.DefaultMimeType, faq.Attachments[0].MimeType)
	assert.Equal(t, int64(0), faq.Attachments[0].Size)
}

func TestCreateResolvesShares(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	faq, err := svc.Create(ctx, CreateFAQInput{
		Title:   "T",
		Content: "C",
		Shares: []ShareInput{
			{Email: "", Permission: "ADMIN"},
			{Email: "bob@example.org", Permission: "quatsch"},
			{Email: "eva@example.org", Permission: "ADMIN", ExpiresAt: "2026-09-30"},
		},
	})
	require.NoError(t, err)
	require.Len(t, faq.Shares, 2)

	byEmail := map[string]models.Share{}
	for _, share := range faq.Shares {
		byEmail[share.User.Email] = share
	}

	bob := byEmail["bob@example.org"]
	assert.Equal(t, models.PermissionView, bob.Permission)
	assert.Equal(t, "bob", bob.User.Name)
	assert.Nil(t, bob.ExpiresAt)

	eva := byEmail["eva@example.org"]
	assert.Equal(t, models.PermissionAdmin, eva.Permission)
	require.NotNil(t, eva.ExpiresAt)
	assert.Equal(t, 2026, eva.ExpiresAt.Year())
}

func TestEnsureUserUpdatesName(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateFAQInput{
		Title: "T", Content: "C",
		Shares: []ShareInput{{Email: "bob@example.org"}},
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateFAQInput{
		Title: "T2", Content: "C2",
		AuthorEmail: "bob@example.org",
		AuthorName:  "Bob Echt",
	})
	require.NoError(t, err)

	var users int64
	require.NoError(t, svc.DB.Model(&models.User{}).Where("email = ?", "bob@example.org").Count(&users).Error)
	assert.Equal(t, int64(1), users)

	var bob models.User
	require.NoError(t, svc.DB.First(&bob, "email = ?", "bob@example.org").Error)
	assert.Equal(t, "Bob Echt", bob.Name)
}

func TestGetNotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Get(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRejectsSelfParent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	faq, err := svc.Create(ctx, CreateFAQInput{Title: "T", Content: "C", TopicNames: []string{"Alt"}})
	require.NoError(t, err)

	_, err = svc.Update(ctx, faq.ID, UpdateFAQInput{
		ParentID:   strPtr(faq.ID),
		TopicNames: []string{"Neu"},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Parent cannot be the same FAQ", verr.Message)

	// Keine Mutation: alte Topic-Verknüpfung bleibt bestehen.
	reloaded, err := svc.Get(ctx, faq.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Topics, 1)
	assert.Equal(t, "Alt", reloaded.Topics[0].Name)
}

func TestUpdateRejectsUnknownParent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	faq, err := svc.Create(ctx, CreateFAQInput{Title: "T", Content: "C"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, faq.ID, UpdateFAQInput{ParentID: strPtr(uuid.NewString())})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Parent FAQ not found", verr.Message)
}

func TestUpdateNotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Update(context.Background(), uuid.NewString(), UpdateFAQInput{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateReplacesCollections(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	faq, err := svc.Create(ctx, CreateFAQInput{
		Title:      "T",
		Content:    "C",
		TopicNames: []string{"A", "B"},
		Attachments: []AttachmentInput{
			{Name: "alt", URL: "http://alt"},
		},
		Shares: []ShareInput{{Email: "bob@example.org"}},
	})
	require.NoError(t, err)
	require.Len(t, faq.Topics, 2)

	updated, err := svc.Update(ctx, faq.ID, UpdateFAQInput{TopicNames: []string{"A"}})
	require.NoError(t, err)

	require.Len(t, updated.Topics, 1)
	assert.Equal(t, "A", updated.Topics[0].Name)
	assert.Empty(t, updated.Attachments)
	assert.Empty(t, updated.Shares)

	var attachments, shares, links int64
	require.NoError(t, svc.DB.Model(&models.Attachment{}).Where("faq_id = ?", faq.ID).Count(&attachments).Error)
	require.NoError(t, svc.DB.Model(&models.Share{}).Where("faq_id = ?", faq.ID).Count(&shares).Error)
	require.NoError(t, svc.DB.Model(&models.FAQTopic{}).Where("faq_id = ?", faq.ID).Count(&links).Error)
	assert.Zero(t, attachments)
	assert.Zero(t, shares)
	assert.Equal(t, int64(1), links)

	// Topic B existiert weiter, ist nur nicht mehr verknüpft.
	var topics int64
	require.NoError(t, svc.DB.Model(&models.Topic{}).Count(&topics).Error)
	assert.Equal(t, int64(2), topics)
}

func TestUpdateKeepsScalarsWhenAbsent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	faq, err := svc.Create(ctx, CreateFAQInput{
		Title:   "Originaltitel",
		Summary: strPtr("Kurzfassung"),
		Content: "Inhalt",
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, faq.ID, UpdateFAQInput{Content: strPtr("Neuer Inhalt")})
	require.NoError(t, err)

	assert.Equal(t, "Originaltitel", updated.Title)
	require.NotNil(t, updated.Summary)
	assert.Equal(t, "Kurzfassung", *updated.Summary)
	assert.Equal(t, "Neuer Inhalt", updated.Content)
}

func TestUpdateNormalizesStatusWhenAbsent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	faq, err := svc.Create(ctx, CreateFAQInput{Title: "T", Content: "C", Status: "PUBLISHED"})
	require.NoError(t, err)
	require.Equal(t, models.StatusPublished, faq.Status)

	// Ohne Status im Payload fällt der Eintrag auf DRAFT zurück.
	updated, err := svc.Update(ctx, faq.ID, UpdateFAQInput{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, updated.Status)
}

func TestUpdateClearsParentWhenAbsent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	parent, err := svc.Create(ctx, CreateFAQInput{Title: "Eltern", Content: "C"})
	require.NoError(t, err)
	child, err := svc.Create(ctx, CreateFAQInput{Title: "Kind", Content: "C", ParentID: strPtr(parent.ID)})
	require.NoError(t, err)
	require.NotNil(t, child.Parent)

	updated, err := svc.Update(ctx, child.ID, UpdateFAQInput{})
	require.NoError(t, err)
	assert.Nil(t, updated.Parent)
	assert.Nil(t, updated.ParentID)
}

func TestDeleteCascades(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	faq, err := svc.Create(ctx, CreateFAQInput{
		Title:       "T",
		Content:     "C",
		TopicNames:  []string{"A"},
		Attachments: []AttachmentInput{{Name: "doc", URL: "http://x"}},
		Shares:      []ShareInput{{Email: "bob@example.org"}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, faq.ID))

	_, err = svc.Get(ctx, faq.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var attachments, shares, links int64
	require.NoError(t, svc.DB.Model(&models.Attachment{}).Where("faq_id = ?", faq.ID).Count(&attachments).Error)
	require.NoError(t, svc.DB.Model(&models.Share{}).Where("faq_id = ?", faq.ID).Count(&shares).Error)
	require.NoError(t, svc.DB.Model(&models.FAQTopic{}).Where("faq_id = ?", faq.ID).Count(&links).Error)
	assert.Zero(t, attachments)
	assert.Zero(t, shares)
	assert.Zero(t, links)

	// Zweites Löschen derselben ID ist ein sauberer NotFound.
	assert.ErrorIs(t, svc.Delete(ctx, faq.ID), ErrNotFound)
}

func TestListFreeTextSearch(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateFAQInput{Title: "Passwort zurücksetzen", Content: "Schritte"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateFAQInput{Title: "VPN einrichten", Content: "Das PASSWORT steht im Intranet"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateFAQInput{Title: "Drucker", Content: "Toner wechseln"})
	require.NoError(t, err)

	results, err := svc.List(ctx, "passwort", nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, faq := range results {
		assert.NotEqual(t, "Drucker", faq.Title)
	}
}

func TestListTopicFilterAndCombination(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateFAQInput{Title: "Firewall Regeln", Content: "C", TopicNames: []string{"Security"}})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateFAQInput{Title: "Passwort Richtlinie", Content: "C", TopicNames: []string{"Security"}})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateFAQInput{Title: "Passwort im WLAN", Content: "C", TopicNames: []string{"Netzwerk"}})
	require.NoError(t, err)

	// Topic-Filter ist case-insensitiv.
	results, err := svc.List(ctx, "", []string{"security"})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	// Freitext UND Topic-Filter.
	results, err = svc.List(ctx, "passwort", []string{"SECURITY"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Passwort Richtlinie", results[0].Title)

	// Mehrere Topic-Namen: ein Treffer genügt.
	results, err = svc.List(ctx, "", []string{"security", "netzwerk"})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestListOrdersByMostRecentlyUpdated(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	older, err := svc.Create(ctx, CreateFAQInput{Title: "Alt", Content: "C"})
	require.NoError(t, err)
	newer, err := svc.Create(ctx, CreateFAQInput{Title: "Neu", Content: "C"})
	require.NoError(t, err)

	base := time.Now().UTC()
	require.NoError(t, svc.DB.Model(&models.FAQ{}).Where("id = ?", older.ID).
		UpdateColumn("updated_at", base.Add(-time.Hour)).Error)
	require.NoError(t, svc.DB.Model(&models.FAQ{}).Where("id = ?", newer.ID).
		UpdateColumn("updated_at", base).Error)

	results, err := svc.List(ctx, "", nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Neu", results[0].Title)
	assert.Equal(t, "Alt", results[1].Title)
}

func TestListTopics(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateFAQInput{Title: "T", Content: "C", TopicNames: []string{"Zebra", "Ameise"}})
	require.NoError(t, err)

	topics, err := svc.ListTopics(ctx)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, "Ameise", topics[0].Name)
	assert.Equal(t, "Zebra", topics[1].Name)
}

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, models.StatusPublished, NormalizeStatus("PUBLISHED"))
	assert.Equal(t, models.StatusDraft, NormalizeStatus("DRAFT"))
	assert.Equal(t, models.StatusDraft, NormalizeStatus(""))
	assert.Equal(t, models.StatusDraft, NormalizeStatus("Published"))
}

func TestNormalizePermission(t *testing.T) {
	assert.Equal(t, models.PermissionEdit, NormalizePermission("EDIT"))
	assert.Equal(t, models.PermissionAdmin, NormalizePermission("ADMIN"))
	assert.Equal(t, models.PermissionView, NormalizePermission("VIEW"))
	assert.Equal(t, models.PermissionView, NormalizePermission(""))
	assert.Equal(t, models.PermissionView, NormalizePermission("edit"))
}

func TestParseExpiry(t *testing.T) {
	assert.Nil(t, parseExpiry(""))
	assert.Nil(t, parseExpiry("kein datum"))

	date := parseExpiry("2026-09-30")
	require.NotNil(t, date)
	assert.Equal(t, time.September, date.Month())

	stamp := parseExpiry("2026-09-30T12:30:00Z")
	require.NotNil(t, stamp)
	assert.Equal(t, 12, stamp.Hour())
}
