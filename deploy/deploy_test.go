package deploy

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/require"

	"github.com/hatlonely/workerplane/artifact"
	"github.com/hatlonely/workerplane/engine"
	"github.com/hatlonely/workerplane/errs"
	"github.com/hatlonely/workerplane/indexer"
	"github.com/hatlonely/workerplane/keycache"
	"github.com/hatlonely/workerplane/log/logger"
	"github.com/hatlonely/workerplane/metastore"
	"github.com/hatlonely/workerplane/quota"
)

const fooService = `import { Service } from "../worker-runtime/index.js";

export class Foo extends Service {
    constructor(x) {
        super(x);
    }

    bar() {
        return 1;
    }
}
`

const bazData = `class Baz extends Data {
    constructor(id) { super(id); }
}
`

const quxMessage = `class Qux extends Message {}
`

type staticQuota struct {
	mu     sync.Mutex
	limits quota.Limits
}

func (q *staticQuota) GetLimits(ctx context.Context) quota.Limits {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limits
}

func (q *staticQuota) set(limits quota.Limits) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.limits = limits
}

// faultyKeys 在调用真实缓存之前注入错误
type faultyKeys struct {
	keycache.KeyCache
	setUserKey func(ctx context.Context) error
}

func (k *faultyKeys) SetUserKey(ctx context.Context, userKey string, workerID uint64) error {
	if k.setUserKey != nil {
		if err := k.setUserKey(ctx); err != nil {
			return err
		}
	}
	return k.KeyCache.SetUserKey(ctx, userKey, workerID)
}

type faultyStore struct {
	MetaStore
	begin  func()
	commit func(ctx context.Context) error
}

func (s *faultyStore) Begin(ctx context.Context) (MetaTx, error) {
	if s.begin != nil {
		s.begin()
	}
	tx, err := s.MetaStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyTx{MetaTx: tx, ctx: ctx, commit: s.commit}, nil
}

type faultyTx struct {
	MetaTx
	ctx    context.Context
	commit func(ctx context.Context) error
}

func (tx *faultyTx) Commit() error {
	if tx.commit != nil {
		if err := tx.commit(tx.ctx); err != nil {
			return err
		}
	}
	return tx.MetaTx.Commit()
}

type fixture struct {
	o        *Orchestrator
	meta     *metastore.Store
	store    *faultyStore
	keys     *faultyKeys
	engine   *engine.MemoryEngine
	quota    *staticQuota
	mr       *miniredis.Miniredis
	reg      *prometheus.Registry
	logs     *bytes.Buffer
	adminKey string
}

func newFixture(t *testing.T) *fixture {
	meta, err := metastore.NewStoreWithOptions(&metastore.Options{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "meta.db") + "?_busy_timeout=5000",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	mr := miniredis.RunT(t)
	redisKeys, err := keycache.NewRedisKeyCacheWithOptions(&keycache.RedisKeyCacheOptions{Endpoint: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisKeys.Close() })

	logs := &bytes.Buffer{}
	l, err := logger.NewSLogWithWriter(&logger.SLogOptions{Level: "info", Format: "text"}, logs)
	require.NoError(t, err)

	f := &fixture{
		meta:   meta,
		store:  &faultyStore{MetaStore: NewMetaStore(meta)},
		keys:   &faultyKeys{KeyCache: redisKeys},
		engine: engine.NewMemoryEngineWithOptions(nil),
		quota:  &staticQuota{limits: quota.Limits{MaxAccounts: 10, WorkersPerUser: 10, MaxWorkers: 100}},
		mr:     mr,
		reg:    prometheus.NewRegistry(),
		logs:   logs,
	}
	f.o, err = NewOrchestratorWithOptions(&Options{
		BuiltInUserIDs:         []string{"builtin"},
		MaxTypeDefinitionBytes: 1024,
		EnableMetrics:          true,
		EnableTracing:          true,
		Name:                   "test_deploy",
	}, &Dependencies{
		Store:      f.store,
		Keys:       f.keys,
		Quota:      f.quota,
		Engine:     f.engine,
		Logger:     l,
		Registerer: f.reg,
	})
	require.NoError(t, err)

	account, err := f.o.CreateAccount(context.Background(), "u1", "u1@example.com")
	require.NoError(t, err)
	f.adminKey = account.AdminKey
	return f
}

func (f *fixture) request(name string, code ...string) *Request {
	files := make([]indexer.File, 0, len(code))
	for i, c := range code {
		files = append(files, indexer.File{Name: []string{"foo.js", "baz.js", "qux.js"}[i], Code: c})
	}
	return &Request{
		AdminKey:        f.adminKey,
		WorkerName:      name,
		Files:           files,
		TypeDefinitions: []byte("typedefs"),
	}
}

func (f *fixture) worker(t *testing.T, userID, name string) *metastore.Worker {
	account, err := f.meta.FindAccountByUserID(context.Background(), userID)
	require.NoError(t, err)
	w, err := f.meta.FindWorkerByName(context.Background(), account.ID, name)
	if errors.Is(err, metastore.ErrRecordNotFound) {
		return nil
	}
	require.NoError(t, err)
	return w
}

func (f *fixture) metric(t *testing.T, name string, labels map[string]string) float64 {
	families, err := f.reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
					matched++
				}
			}
			if matched == len(labels) && m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func update(resp *Response, req *Request) *Request {
	req.WorkerID = &resp.WorkerID
	version := resp.WorkerVersion
	req.PreviousVersion = &version
	req.ClassMappings = resp.ClassMappings
	req.LastClassID = resp.LastClassID
	return req
}

func TestCreateAndUpdate(t *testing.T) {
	Convey("新建 worker", t, func() {
		ctx := context.Background()
		f := newFixture(t)

		resp, err := f.o.Deploy(ctx, f.request("alpha", fooService))
		So(err, ShouldBeNil)
		So(resp.WorkerID, ShouldBeGreaterThan, 0)
		So(resp.WorkerVersion, ShouldEqual, 1)
		So(resp.ClassMappings, ShouldResemble, []indexer.ClassMapping{{ClassName: "Foo", ClassID: 1}})
		So(resp.LastClassID, ShouldEqual, 1)

		live, ok := f.engine.LiveVersion(resp.WorkerID)
		So(ok, ShouldBeTrue)
		So(live, ShouldEqual, 1)
		setups := f.engine.Setups()
		So(setups, ShouldHaveLength, 1)
		So(setups[0].PreviousWorkerVersion, ShouldBeNil)
		So(setups[0].LogID, ShouldNotBeEmpty)
		So(setups[0].Code[0], ShouldContainSubstring, `from "worker-runtime"`)

		w := f.worker(t, "u1", "alpha")
		So(w.Version, ShouldEqual, 1)
		workerID, err := f.keys.GetWorkerIDByUserKey(ctx, w.UserKey)
		So(err, ShouldBeNil)
		So(workerID, ShouldEqual, resp.WorkerID)

		info, err := f.o.GetConnectInfo(ctx, f.adminKey, "alpha")
		So(err, ShouldBeNil)
		So(info.UserKey, ShouldEqual, w.UserKey)
		So(info.TypeDefinitions, ShouldResemble, []byte("typedefs"))
		index, err := artifact.DecodeIndex(info.Index)
		So(err, ShouldBeNil)
		So(index.WorkerName, ShouldEqual, "alpha")
		So(index.Services[0].Methods[0].MethodID, ShouldEqual, indexer.UserMethodIDStart)

		So(f.metric(t, "test_deploy_operations_total", map[string]string{"operation": "create", "status": "success"}), ShouldEqual, 1)

		Convey("更新保留已有类的 ID", func() {
			resp2, err := f.o.Deploy(ctx, update(resp, f.request("alpha", fooService, bazData)))
			So(err, ShouldBeNil)
			So(resp2.WorkerID, ShouldEqual, resp.WorkerID)
			So(resp2.WorkerVersion, ShouldEqual, 2)
			So(resp2.ClassMappings, ShouldResemble, []indexer.ClassMapping{{ClassName: "Foo", ClassID: 1}, {ClassName: "Baz", ClassID: 2}})
			So(resp2.LastClassID, ShouldEqual, 2)

			live, _ := f.engine.LiveVersion(resp.WorkerID)
			So(live, ShouldEqual, 2)
			setups := f.engine.Setups()
			So(*setups[1].PreviousWorkerVersion, ShouldEqual, 1)
			So(setups[1].LogID, ShouldNotEqual, setups[0].LogID)
			So(f.worker(t, "u1", "alpha").Version, ShouldEqual, 2)

			Convey("基于旧版本的更新被拒绝", func() {
				_, err := f.o.Deploy(ctx, update(resp, f.request("alpha", fooService)))
				So(errs.IsKind(err, errs.KindConflict), ShouldBeTrue)
				So(errs.CodeOf(err), ShouldEqual, errs.CodeWorkerNotFoundPullLatest)
				live, _ := f.engine.LiveVersion(resp.WorkerID)
				So(live, ShouldEqual, 2)
			})

			Convey("客户端计数器落后时不会复用 ID", func() {
				req := update(resp2, f.request("alpha", fooService, quxMessage))
				req.ClassMappings = []indexer.ClassMapping{{ClassName: "Foo", ClassID: 1}}
				req.LastClassID = 0
				resp3, err := f.o.Deploy(ctx, req)
				So(err, ShouldBeNil)
				So(resp3.ClassMappings, ShouldResemble, []indexer.ClassMapping{{ClassName: "Foo", ClassID: 1}, {ClassName: "Qux", ClassID: 3}})
				So(resp3.LastClassID, ShouldEqual, 3)
			})

			Convey("重命名", func() {
				_, err := f.o.Deploy(ctx, update(resp2, f.request("beta", fooService)))
				So(err, ShouldBeNil)
				names, err := f.o.ListWorkers(ctx, f.adminKey)
				So(err, ShouldBeNil)
				So(names, ShouldResemble, []string{"beta"})
			})

			Convey("重命名为已存在的名称", func() {
				_, err := f.o.Deploy(ctx, f.request("gamma", fooService))
				So(err, ShouldBeNil)
				_, err = f.o.Deploy(ctx, update(resp2, f.request("gamma", fooService)))
				So(errs.CodeOf(err), ShouldEqual, errs.CodeDuplicateWorkerName)
				So(f.worker(t, "u1", "alpha").Version, ShouldEqual, 2)
			})
		})

		Convey("名称重复", func() {
			_, err := f.o.Deploy(ctx, f.request("alpha", fooService))
			So(errs.IsKind(err, errs.KindConflict), ShouldBeTrue)
			So(errs.CodeOf(err), ShouldEqual, errs.CodeDuplicateWorkerName)
			So(f.engine.Setups(), ShouldHaveLength, 1)
		})

		Convey("不合法的类映射", func() {
			req := update(resp, f.request("alpha", fooService))
			req.ClassMappings = []indexer.ClassMapping{{ClassName: "Foo", ClassID: 0}}
			_, err := f.o.Deploy(ctx, req)
			So(errs.CodeOf(err), ShouldEqual, errs.CodeInvalidClassMapping)
			So(f.worker(t, "u1", "alpha").Version, ShouldEqual, 1)
		})
	})
}

func TestCreateCompensation(t *testing.T) {
	Convey("新建失败时补偿", t, func() {
		ctx := context.Background()
		f := newFixture(t)

		Convey("写入 userKey 失败：卸载并回滚", func() {
			f.keys.setUserKey = func(ctx context.Context) error { return errors.New("redis down") }
			_, err := f.o.Deploy(ctx, f.request("alpha", fooService))
			So(errs.IsKind(err, errs.KindPlatform), ShouldBeTrue)
			So(errs.CodeOf(err), ShouldEqual, errs.CodeKeyCacheFault)

			So(f.engine.Teardowns(), ShouldHaveLength, 1)
			So(f.engine.Teardowns()[0].WorkerVersion, ShouldEqual, 1)
			_, live := f.engine.LiveVersion(f.engine.Setups()[0].WorkerID)
			So(live, ShouldBeFalse)
			So(f.worker(t, "u1", "alpha"), ShouldBeNil)
			So(f.mr.Keys(), ShouldHaveLength, 1)

			So(f.metric(t, "test_deploy_compensations_total", map[string]string{"step": "teardown", "status": "success"}), ShouldEqual, 1)
			So(f.metric(t, "test_deploy_compensations_total", map[string]string{"step": "rollback", "status": "success"}), ShouldEqual, 1)
			So(f.metric(t, "test_deploy_compensations_total", map[string]string{"step": "uncache"}), ShouldEqual, 0)
		})

		Convey("提交失败：删除 userKey、卸载并回滚", func() {
			f.store.commit = func(ctx context.Context) error { return errors.New("disk full") }
			_, err := f.o.Deploy(ctx, f.request("alpha", fooService))
			So(errs.CodeOf(err), ShouldEqual, errs.CodeUnknownWorkerCreationFailure)

			So(f.engine.Teardowns(), ShouldHaveLength, 1)
			So(f.worker(t, "u1", "alpha"), ShouldBeNil)
			So(f.mr.Keys(), ShouldHaveLength, 1)
			So(f.logs.String(), ShouldContainSubstring, "unknown worker creation failure")
			So(f.metric(t, "test_deploy_compensations_total", map[string]string{"step": "uncache", "status": "success"}), ShouldEqual, 1)
		})

		Convey("调用方取消后补偿仍然执行", func() {
			cctx, cancel := context.WithCancel(ctx)
			defer cancel()
			f.store.commit = func(ctx context.Context) error {
				cancel()
				return context.Canceled
			}
			_, err := f.o.Deploy(cctx, f.request("alpha", fooService))
			So(err, ShouldNotBeNil)
			So(f.mr.Keys(), ShouldHaveLength, 1)
			So(f.engine.Teardowns(), ShouldHaveLength, 1)
			So(f.worker(t, "u1", "alpha"), ShouldBeNil)
		})

		Convey("补偿失败记录 CRITICAL 日志且不覆盖原始错误", func() {
			f.keys.setUserKey = func(ctx context.Context) error { return errors.New("redis down") }
			f.engine.TeardownHook = func(req *engine.TeardownRequest) error { return errors.New("engine unreachable") }
			_, err := f.o.Deploy(ctx, f.request("alpha", fooService))
			So(errs.CodeOf(err), ShouldEqual, errs.CodeKeyCacheFault)
			So(f.logs.String(), ShouldContainSubstring, "CRITICAL")
			So(f.logs.String(), ShouldContainSubstring, "manual cleanup required")
			So(f.worker(t, "u1", "alpha"), ShouldBeNil)
			So(f.metric(t, "test_deploy_compensations_total", map[string]string{"step": "teardown", "status": "error"}), ShouldEqual, 1)
		})

		Convey("引擎拒绝用户代码：只回滚", func() {
			f.engine.SetupHook = func(req *engine.SetupRequest) error {
				return &engine.ScriptError{Message: "ReferenceError: x is not defined"}
			}
			_, err := f.o.Deploy(ctx, f.request("alpha", fooService))
			So(errs.IsKind(err, errs.KindValidation), ShouldBeTrue)
			So(errs.CodeOf(err), ShouldEqual, errs.CodeWorkerScriptError)
			So(f.engine.Teardowns(), ShouldBeEmpty)
			So(f.worker(t, "u1", "alpha"), ShouldBeNil)
		})

		Convey("代码不合法：不调用引擎", func() {
			_, err := f.o.Deploy(ctx, f.request("alpha", "class A extends Service {}"))
			So(errs.CodeOf(err), ShouldEqual, errs.CodeInvalidWorkerCode)
			So(f.engine.Setups(), ShouldBeEmpty)
			So(f.worker(t, "u1", "alpha"), ShouldBeNil)
		})
	})
}

func TestUpdateFailure(t *testing.T) {
	Convey("更新失败", t, func() {
		ctx := context.Background()
		f := newFixture(t)
		resp, err := f.o.Deploy(ctx, f.request("alpha", fooService))
		So(err, ShouldBeNil)

		Convey("引擎安装成功后提交失败，不卸载新版本", func() {
			f.store.commit = func(ctx context.Context) error { return errors.New("disk full") }
			_, err := f.o.Deploy(ctx, update(resp, f.request("alpha", fooService)))
			So(errs.CodeOf(err), ShouldEqual, errs.CodeUnknownWorkerUpdateFailure)
			So(f.engine.Teardowns(), ShouldBeEmpty)
			live, _ := f.engine.LiveVersion(resp.WorkerID)
			So(live, ShouldEqual, 2)
			So(f.worker(t, "u1", "alpha").Version, ShouldEqual, 1)
		})

		Convey("引擎拒绝用户代码时回滚", func() {
			f.engine.SetupHook = func(req *engine.SetupRequest) error { return &engine.ScriptError{Message: "boom"} }
			_, err := f.o.Deploy(ctx, update(resp, f.request("alpha", fooService)))
			So(errs.CodeOf(err), ShouldEqual, errs.CodeWorkerScriptError)
			So(f.worker(t, "u1", "alpha").Version, ShouldEqual, 1)
		})

		Convey("引擎故障", func() {
			f.engine.SetupHook = func(req *engine.SetupRequest) error { return &engine.CodeError{Code: 500} }
			_, err := f.o.Deploy(ctx, update(resp, f.request("alpha", fooService)))
			So(errs.IsKind(err, errs.KindPlatform), ShouldBeTrue)
			So(errs.CodeOf(err), ShouldEqual, errs.CodeEngineFault)
		})

		Convey("其他账号不能更新", func() {
			other, err := f.o.CreateAccount(ctx, "u2", "")
			So(err, ShouldBeNil)
			req := update(resp, f.request("alpha", fooService))
			req.AdminKey = other.AdminKey
			_, err = f.o.Deploy(ctx, req)
			So(errs.CodeOf(err), ShouldEqual, errs.CodeWorkerNotFoundPullLatest)
		})
	})
}

func TestConcurrentUpdate(t *testing.T) {
	Convey("基于同一版本的并发更新只有一个成功，另一个提示拉取最新版本", t, func() {
		ctx := context.Background()
		f := newFixture(t)
		resp, err := f.o.Deploy(ctx, f.request("alpha", fooService))
		So(err, ShouldBeNil)

		entered, release := make(chan struct{}), make(chan struct{})
		var once sync.Once
		f.engine.SetupHook = func(req *engine.SetupRequest) error {
			once.Do(func() {
				close(entered)
				<-release
			})
			return nil
		}

		type result struct {
			resp *Response
			err  error
		}
		firstDone := make(chan result, 1)
		go func() {
			r, err := f.o.Deploy(ctx, update(resp, f.request("alpha", fooService)))
			firstDone <- result{r, err}
		}()
		<-entered

		began := make(chan struct{})
		f.store.begin = func() { close(began) }
		secondDone := make(chan result, 1)
		go func() {
			r, err := f.o.Deploy(ctx, update(resp, f.request("alpha", fooService, bazData)))
			secondDone <- result{r, err}
		}()
		<-began
		time.Sleep(100 * time.Millisecond)
		close(release)

		first, second := <-firstDone, <-secondDone
		So(first.err, ShouldBeNil)
		So(first.resp.WorkerVersion, ShouldEqual, 2)
		So(errs.IsKind(second.err, errs.KindConflict), ShouldBeTrue)
		So(errs.CodeOf(second.err), ShouldEqual, errs.CodeWorkerNotFoundPullLatest)

		So(f.worker(t, "u1", "alpha").Version, ShouldEqual, 2)
		live, _ := f.engine.LiveVersion(resp.WorkerID)
		So(live, ShouldEqual, 2)
		So(f.engine.Setups(), ShouldHaveLength, 2)
	})
}

func TestQuota(t *testing.T) {
	Convey("配额", t, func() {
		ctx := context.Background()
		f := newFixture(t)

		Convey("单用户上限", func() {
			f.quota.set(quota.Limits{MaxAccounts: 10, WorkersPerUser: 1, MaxWorkers: 100})
			_, err := f.o.Deploy(ctx, f.request("alpha", fooService))
			So(err, ShouldBeNil)
			_, err = f.o.Deploy(ctx, f.request("beta", fooService))
			So(errs.IsKind(err, errs.KindQuota), ShouldBeTrue)
			So(errs.CodeOf(err), ShouldEqual, errs.CodeUserWorkerLimitReached)
		})

		Convey("平台总量上限", func() {
			f.quota.set(quota.Limits{MaxAccounts: 10, WorkersPerUser: 10, MaxWorkers: 1})
			_, err := f.o.Deploy(ctx, f.request("alpha", fooService))
			So(err, ShouldBeNil)

			other, err := f.o.CreateAccount(ctx, "u2", "")
			So(err, ShouldBeNil)
			req := f.request("beta", fooService)
			req.AdminKey = other.AdminKey
			_, err = f.o.Deploy(ctx, req)
			So(errs.CodeOf(err), ShouldEqual, errs.CodeMaxWorkerLimitReached)

			Convey("内置账号不受限制", func() {
				builtin, err := f.o.CreateAccount(ctx, "builtin", "")
				So(err, ShouldBeNil)
				req := f.request("beta", fooService)
				req.AdminKey = builtin.AdminKey
				_, err = f.o.Deploy(ctx, req)
				So(err, ShouldBeNil)
			})
		})

		Convey("账号数量上限", func() {
			f.quota.set(quota.Limits{MaxAccounts: 1, WorkersPerUser: 10, MaxWorkers: 100})
			_, err := f.o.CreateAccount(ctx, "u2", "")
			So(errs.CodeOf(err), ShouldEqual, errs.CodeMaxAccountLimitReached)
		})
	})
}

func TestAccountAndAdmin(t *testing.T) {
	Convey("账号与 worker 管理", t, func() {
		ctx := context.Background()
		f := newFixture(t)

		Convey("重复账号会删除新生成的 adminKey", func() {
			_, err := f.o.CreateAccount(ctx, "u1", "")
			So(errs.CodeOf(err), ShouldEqual, errs.CodeDuplicateAccount)
			So(f.mr.Keys(), ShouldHaveLength, 1)
		})

		Convey("未知 adminKey", func() {
			req := f.request("alpha", fooService)
			req.AdminKey = "unknown"
			_, err := f.o.Deploy(ctx, req)
			So(errs.IsKind(err, errs.KindNotFound), ShouldBeTrue)
			So(errs.CodeOf(err), ShouldEqual, errs.CodeUserNotFound)
		})

		Convey("删除 worker", func() {
			resp, err := f.o.Deploy(ctx, f.request("alpha", fooService))
			So(err, ShouldBeNil)
			userKey := f.worker(t, "u1", "alpha").UserKey

			So(f.o.DeleteWorker(ctx, f.adminKey, "alpha"), ShouldBeNil)
			So(f.engine.Teardowns(), ShouldResemble, []engine.TeardownRequest{{
				LogID: f.engine.Teardowns()[0].LogID, WorkerID: resp.WorkerID, WorkerVersion: 1,
			}})
			So(f.worker(t, "u1", "alpha"), ShouldBeNil)
			_, err = f.keys.GetWorkerIDByUserKey(ctx, userKey)
			So(err, ShouldEqual, keycache.ErrKeyNotFound)

			err = f.o.DeleteWorker(ctx, f.adminKey, "alpha")
			So(errs.CodeOf(err), ShouldEqual, errs.CodeWorkerNotFoundByName)
		})

		Convey("连接信息", func() {
			_, err := f.o.GetConnectInfo(ctx, f.adminKey, "missing")
			So(errs.CodeOf(err), ShouldEqual, errs.CodeWorkerNotFoundByName)
		})

		Convey("列出 worker", func() {
			for _, name := range []string{"gamma", "alpha"} {
				_, err := f.o.Deploy(ctx, f.request(name, fooService))
				So(err, ShouldBeNil)
			}
			names, err := f.o.ListWorkers(ctx, f.adminKey)
			So(err, ShouldBeNil)
			So(names, ShouldResemble, []string{"alpha", "gamma"})
		})
	})
}

func TestValidateRequest(t *testing.T) {
	f := newFixture(t)
	one := uint64(1)

	tests := []struct {
		name   string
		modify func(req *Request)
		code   string
	}{
		{name: "name too short", modify: func(req *Request) { req.WorkerName = "ab" }, code: errs.CodeInvalidRequest},
		{name: "no files", modify: func(req *Request) { req.Files = nil }, code: errs.CodeInvalidRequest},
		{name: "no admin key", modify: func(req *Request) { req.AdminKey = "" }, code: errs.CodeInvalidRequest},
		{name: "unsupported language", modify: func(req *Request) { req.Language = "python" }, code: errs.CodeInvalidRequest},
		{name: "missing type definitions", modify: func(req *Request) { req.TypeDefinitions = nil }, code: errs.CodeMissingTypeDefinitions},
		{name: "type definitions too large", modify: func(req *Request) { req.TypeDefinitions = make([]byte, 2048) }, code: errs.CodeInvalidRequest},
		{name: "worker id without version", modify: func(req *Request) { req.WorkerID = &one }, code: errs.CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request("alpha", fooService)
			tt.modify(req)
			_, err := f.o.Deploy(context.Background(), req)
			require.Error(t, err)
			require.Equal(t, tt.code, errs.CodeOf(err))
			require.True(t, errs.IsKind(err, errs.KindValidation))
		})
	}
	require.Empty(t, f.engine.Setups())
}

func TestNewOrchestratorWithOptions(t *testing.T) {
	_, err := NewOrchestratorWithOptions(nil, &Dependencies{})
	require.Error(t, err)
	_, err = NewOrchestratorWithOptions(&Options{}, &Dependencies{})
	require.Error(t, err)
}
