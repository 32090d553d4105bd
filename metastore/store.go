package metastore

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	gmysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	ErrRecordNotFound      = errors.New("record not found")
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrDuplicateWorkerName = errors.New("duplicate worker name")
	ErrVersionConflict     = errors.New("worker version conflict")
)

// mysql 唯一键冲突错误码
const mysqlDuplicateEntry = 1062

type Options struct {
	// 数据库驱动：sqlite, mysql
	Driver          string        `cfg:"driver" def:"sqlite" validate:"oneof=sqlite mysql"`
	DSN             string        `cfg:"dsn" validate:"required"`
	MaxOpenConns    int           `cfg:"maxOpenConns" def:"10"`
	MaxIdleConns    int           `cfg:"maxIdleConns" def:"5"`
	ConnMaxLifetime time.Duration `cfg:"connMaxLifetime" def:"1h"`
	// sqlite 等待写锁的时间，DSN 中已指定 _busy_timeout 时以 DSN 为准
	BusyTimeout time.Duration `cfg:"busyTimeout" def:"5s"`
	// 跳过自动建表，生产环境由迁移脚本管理表结构
	SkipMigrate bool `cfg:"skipMigrate"`
}

// Store worker 元数据存储
type Store struct {
	db *gorm.DB
}

func NewStoreWithOptions(options *Options) (*Store, error) {
	if options == nil || options.DSN == "" {
		return nil, errors.New("metastore dsn is required")
	}

	config := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}

	var db *gorm.DB
	var err error
	switch options.Driver {
	case "", "sqlite":
		db, err = gorm.Open(sqlite.Open(sqliteDSN(options.DSN, options.BusyTimeout)), config)
	case "mysql":
		db, err = gorm.Open(gmysql.Open(options.DSN), config)
	default:
		return nil, errors.Errorf("unsupported database driver: %s", options.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "gorm.Open failed")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "db.DB failed")
	}
	if options.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(options.MaxOpenConns)
	}
	if options.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(options.MaxIdleConns)
	}
	if options.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(options.ConnMaxLifetime)
	}

	if !options.SkipMigrate {
		if err := db.AutoMigrate(&Account{}, &Worker{}, &WorkerIndex{}, &WorkerTypeDefinition{}); err != nil {
			return nil, errors.Wrap(err, "db.AutoMigrate failed")
		}
	}

	return &Store{db: db}, nil
}

// sqliteDSN 事务以 BEGIN IMMEDIATE 开始，并发写在 Begin 处排队等待
// 延迟事务先持有读锁，升级为写锁时与另一个写事务互相等待，sqlite 直接返回 database is locked
func sqliteDSN(dsn string, busyTimeout time.Duration) string {
	var params []string
	if !strings.Contains(dsn, "_txlock=") {
		params = append(params, "_txlock=immediate")
	}
	if busyTimeout > 0 && !strings.Contains(dsn, "_timeout=") {
		params = append(params, "_busy_timeout="+strconv.FormatInt(busyTimeout.Milliseconds(), 10))
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "db.DB failed")
	}
	return sqlDB.Close()
}

// Begin 开启事务，调用方负责 Commit 或 Rollback
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	db := s.db.WithContext(ctx).Begin()
	if db.Error != nil {
		return nil, errors.Wrap(db.Error, "db.Begin failed")
	}
	return &Tx{db: db}, nil
}

func (s *Store) FindAccountByUserID(ctx context.Context, userID string) (*Account, error) {
	var account Account
	err := s.db.WithContext(ctx).Where("user_id = ? AND deleted_at IS NULL", userID).First(&account).Error
	if err != nil {
		return nil, translate(err, "find account")
	}
	return &account, nil
}

func (s *Store) CreateAccount(ctx context.Context, account *Account) error {
	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		return translate(err, "create account")
	}
	return nil
}

func (s *Store) CountAccounts(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Account{}).Where("deleted_at IS NULL").Count(&n).Error; err != nil {
		return 0, errors.Wrap(err, "count accounts failed")
	}
	return n, nil
}

func (s *Store) CountWorkersByAccount(ctx context.Context, accountID uint64) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Worker{}).Where("account_id = ?", accountID).Count(&n).Error; err != nil {
		return 0, errors.Wrap(err, "count workers by account failed")
	}
	return n, nil
}

func (s *Store) CountWorkers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Worker{}).Count(&n).Error; err != nil {
		return 0, errors.Wrap(err, "count workers failed")
	}
	return n, nil
}

func (s *Store) FindWorkerByName(ctx context.Context, accountID uint64, name string) (*Worker, error) {
	var worker Worker
	err := s.db.WithContext(ctx).Where("account_id = ? AND name = ?", accountID, name).First(&worker).Error
	if err != nil {
		return nil, translate(err, "find worker by name")
	}
	return &worker, nil
}

func (s *Store) ListWorkers(ctx context.Context, accountID uint64) ([]Worker, error) {
	var workers []Worker
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("name").Find(&workers).Error; err != nil {
		return nil, errors.Wrap(err, "list workers failed")
	}
	return workers, nil
}

func (s *Store) GetArtifacts(ctx context.Context, workerID uint64) (*Artifacts, error) {
	var index WorkerIndex
	if err := s.db.WithContext(ctx).Where("worker_id = ?", workerID).First(&index).Error; err != nil {
		return nil, translate(err, "find worker index")
	}
	var typeDefs WorkerTypeDefinition
	if err := s.db.WithContext(ctx).Where("worker_id = ?", workerID).First(&typeDefs).Error; err != nil {
		return nil, translate(err, "find worker type definitions")
	}
	return &Artifacts{Index: index.Index, TypeDefinitions: typeDefs.CompressedTypeDefinitions}, nil
}

// DeleteWorker 删除 worker 及其产物
func (s *Store) DeleteWorker(ctx context.Context, workerID uint64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("worker_id = ?", workerID).Delete(&WorkerIndex{}).Error; err != nil {
			return err
		}
		if err := tx.Where("worker_id = ?", workerID).Delete(&WorkerTypeDefinition{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", workerID).Delete(&Worker{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return translate(err, "delete worker")
	}
	return nil
}

// Tx 部署流程中的事务，提交之前其他连接看不到任何修改
type Tx struct {
	db   *gorm.DB
	done bool
}

// CreateWorker 同一账号下名称重复时返回 ErrDuplicateWorkerName
func (tx *Tx) CreateWorker(worker *Worker) error {
	if err := tx.db.Create(worker).Error; err != nil {
		return workerNameError(translate(err, "create worker"))
	}
	return nil
}

// FindWorkerVersion 版本不匹配时返回 ErrRecordNotFound，说明客户端不是最新版本
func (tx *Tx) FindWorkerVersion(accountID, workerID, version uint64) (*Worker, error) {
	var worker Worker
	err := tx.db.Where("id = ? AND account_id = ? AND version = ?", workerID, accountID, version).First(&worker).Error
	if err != nil {
		return nil, translate(err, "find worker version")
	}
	return &worker, nil
}

// SaveArtifacts 覆盖写入索引和类型声明
func (tx *Tx) SaveArtifacts(workerID uint64, artifacts *Artifacts) error {
	err := tx.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&WorkerIndex{WorkerID: workerID, Index: artifacts.Index}).Error
	if err != nil {
		return errors.Wrap(err, "save worker index failed")
	}
	err = tx.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&WorkerTypeDefinition{
		WorkerID: workerID, CompressedTypeDefinitions: artifacts.TypeDefinitions,
	}).Error
	if err != nil {
		return errors.Wrap(err, "save worker type definitions failed")
	}
	return nil
}

// BumpVersion 只有当前版本仍为 prevVersion 时才更新，并发更新中只有一个能成功
func (tx *Tx) BumpVersion(worker *Worker, prevVersion uint64) error {
	res := tx.db.Model(&Worker{}).
		Where("id = ? AND version = ?", worker.ID, prevVersion).
		Updates(map[string]any{"name": worker.Name, "version": prevVersion + 1})
	if res.Error != nil {
		return workerNameError(translate(res.Error, "bump worker version"))
	}
	if res.RowsAffected != 1 {
		return ErrVersionConflict
	}
	worker.Version = prevVersion + 1
	return nil
}

func (tx *Tx) Commit() error {
	if tx.done {
		return errors.New("transaction already finished")
	}
	tx.done = true
	if err := tx.db.Commit().Error; err != nil {
		return errors.Wrap(err, "commit failed")
	}
	return nil
}

// Rollback 事务已结束时不做任何事
func (tx *Tx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	if err := tx.db.Rollback().Error; err != nil {
		return errors.Wrap(err, "rollback failed")
	}
	return nil
}

func translate(err error, op string) error {
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	if isDuplicateKey(err) {
		return ErrDuplicateKey
	}
	return errors.Wrapf(err, "%s failed", op)
}

func isDuplicateKey(err error) bool {
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	return stderrors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// workers 表上的唯一键冲突视为名称冲突
func workerNameError(err error) error {
	if err == ErrDuplicateKey {
		return ErrDuplicateWorkerName
	}
	return err
}
