package db

import "database/sql"

// Blueprint はblueprintsテーブルの行。
type Blueprint struct {
	ID              string
	Name            string
	ResourceName    string
	SubjectTemplate string
	BodyTemplate    string
	// Placeholders はプレースホルダ名のJSON配列。
	Placeholders string
	CreatedAt    string
	UpdatedAt    string
}

// Automation はautomationsテーブルの行。
type Automation struct {
	ID           string
	Name         string
	ResourceName string
	BlueprintID  string
	CreatedAt    string
	UpdatedAt    string
}

// DispatchRecord はdispatch_recordsテーブルの行。
type DispatchRecord struct {
	ID              string
	RecipientEmail  string
	ResourceID      string
	ResourceName    string
	Tag             string
	Status          string
	IsOpened        int64
	IsClicked       int64
	ScheduleTime    sql.NullString
	OpenTimes       string
	ClickTimes      string
	SentTimes       string
	Cc              string
	Bcc             string
	BlueprintRef    string
	PlaceValues     string
	Priority        int64
	IsPredefined    int64
	Transport       string
	RenderedSubject sql.NullString
	RenderedBody    sql.NullString
	CreatedAt       string
	UpdatedAt       string
}

// Transport はtransportsテーブルの行。
type Transport struct {
	ID          string
	Name        string
	FromAddress string
	IsDefault   int64
	CreatedAt   string
}

// EngagementStats は宛先ごとの集計結果。
type EngagementStats struct {
	SentCount      int64
	OpenedCount    int64
	ClickedCount   int64
	QueuedCount    int64
	ScheduledCount int64
}
