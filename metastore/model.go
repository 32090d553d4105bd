package metastore

import (
	"time"
)

// Account 平台账号，DeletedAt 非空时视为已删除
type Account struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement;column:id"`
	UserID    string     `gorm:"size:64;not null;uniqueIndex;column:user_id"`
	Email     string     `gorm:"size:255;column:email"`
	AdminKey  string     `gorm:"size:512;not null;uniqueIndex;column:admin_key"`
	CreatedAt time.Time  `gorm:"autoCreateTime;column:created_at"`
	DeletedAt *time.Time `gorm:"index;column:deleted_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// Worker 同一账号下 worker 名称唯一
type Worker struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement;column:id"`
	AccountID uint64    `gorm:"not null;uniqueIndex:account_worker_name_unq,priority:1;column:account_id"`
	Name      string    `gorm:"size:64;not null;uniqueIndex:account_worker_name_unq,priority:2;column:name"`
	Version   uint64    `gorm:"not null;column:version"`
	UserKey   string    `gorm:"size:512;not null;uniqueIndex;column:user_key"`
	CreatedAt time.Time `gorm:"autoCreateTime;column:created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;column:updated_at"`
}

func (Worker) TableName() string {
	return "workers"
}

// WorkerIndex msgpack 编码的索引，每个 worker 一行
type WorkerIndex struct {
	WorkerID uint64 `gorm:"primaryKey;autoIncrement:false;column:worker_id"`
	Index    []byte `gorm:"not null;column:index_data"`
}

func (WorkerIndex) TableName() string {
	return "worker_indexes"
}

// WorkerTypeDefinition 压缩后的类型声明归档
type WorkerTypeDefinition struct {
	WorkerID                  uint64 `gorm:"primaryKey;autoIncrement:false;column:worker_id"`
	CompressedTypeDefinitions []byte `gorm:"not null;column:compressed_type_definitions"`
}

func (WorkerTypeDefinition) TableName() string {
	return "worker_type_definitions"
}

// Artifacts 一次部署生成的两个二进制产物
type Artifacts struct {
	Index           []byte
	TypeDefinitions []byte
}
