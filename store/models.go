package store

import "time"

// Conversation 会话记录，首次提问时创建
type Conversation struct {
	ID        string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"size:64;not null;default:''"`
	Account   string `gorm:"size:128;not null;default:''"`
	AgentID   string `gorm:"size:128;not null;default:''"`
	SceneID   string `gorm:"size:128;not null;default:''"`
	Source    string `gorm:"size:32;not null;default:''"`
	Title     string `gorm:"size:255;not null;default:''"`
	IsScene   bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Conversation) TableName() string { return "conversations" }

// Message 共享会话历史中的一条消息，写入后不再修改
type Message struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	ThreadID      string    `gorm:"size:64;not null;index:idx_thread_agent_created,priority:1"`
	MessageID     string    `gorm:"size:64;not null;default:''"`
	AgentName     string    `gorm:"size:128;not null;default:'';index:idx_thread_agent_created,priority:2"`
	Role          string    `gorm:"size:16;not null"`
	Content       string    `gorm:"type:text;not null"`
	ExtraMetadata *string   `gorm:"type:text"`
	UserID        string    `gorm:"size:64;not null;default:''"`
	CreatedAt     time.Time `gorm:"index:idx_thread_agent_created,priority:3"`
	UpdatedAt     time.Time
}

func (Message) TableName() string { return "agentflow_shared_conversation_history" }

// SceneRoute 场景到上游平台的路由
type SceneRoute struct {
	SceneID   string `gorm:"primaryKey;size:128"`
	Source    string `gorm:"size:32;not null"`
	APIKey    string `gorm:"column:api_key;size:255;not null;default:''"`
	BaseURL   string `gorm:"size:512;not null;default:''"`
	AgentCode string `gorm:"size:128;not null;default:''"`
	Enabled   bool   `gorm:"not null;default:true"`
	UpdatedAt time.Time
}

func (SceneRoute) TableName() string { return "scene_routes" }

// SceneVisit 场景访问计数
type SceneVisit struct {
	SceneID       string `gorm:"primaryKey;size:128"`
	VisitCount    int64  `gorm:"not null;default:0"`
	LastVisitedAt time.Time
}

func (SceneVisit) TableName() string { return "scene_visits" }

// JobRun 定时任务的一次执行
type JobRun struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement"`
	JobType    string     `gorm:"size:64;not null;index:idx_job_runs_type_started,priority:1"`
	Status     string     `gorm:"size:16;not null"`
	Message    string     `gorm:"type:text"`
	StartedAt  time.Time  `gorm:"index:idx_job_runs_type_started,priority:2"`
	FinishedAt *time.Time
}

func (JobRun) TableName() string { return "job_runs" }

// Models 返回全部模型，测试中用于 AutoMigrate
func Models() []any {
	return []any{&Conversation{}, &Message{}, &SceneRoute{}, &SceneVisit{}, &JobRun{}}
}
