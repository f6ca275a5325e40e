package models

// FAQTopic verknüpft ein FAQ mit einem Topic. Der zusammengesetzte
// Primärschlüssel verhindert doppelte Verknüpfungen pro Paar.
type FAQTopic struct {
	FAQID   string `json:"faqId" gorm:"column:faq_id;primaryKey;size:36"`
	TopicID string `json:"topicId" gorm:"column:topic_id;primaryKey;size:36"`

	Topic Topic `json:"topic" gorm:"foreignKey:TopicID"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (FAQTopic) TableName() string {
	return "faq_topics"
}
