package syncer

import (
	"strings"

	"github.com/freshtrace/chaincore/src/cache"
	"github.com/freshtrace/chaincore/src/gateway"
	"github.com/freshtrace/chaincore/src/queue"
	"github.com/freshtrace/chaincore/src/server"
	"github.com/freshtrace/chaincore/src/sessionkey"
	"github.com/freshtrace/chaincore/src/tracker"
	"github.com/freshtrace/chaincore/src/utils/config"
	"github.com/freshtrace/chaincore/src/utils/eth"
	"github.com/freshtrace/chaincore/src/utils/kv"
	"github.com/freshtrace/chaincore/src/utils/model"
	"github.com/freshtrace/chaincore/src/utils/monitoring"
	"github.com/freshtrace/chaincore/src/utils/task"
)

// Main class that orchestrates the service: chain client, database,
// tracker, queue, session keys, periodic sync and the REST server.
type Controller struct {
	*task.Task

	syncer *Syncer
}

func NewController(config *config.Config) (self *Controller, err error) {
	self = new(Controller)

	self.Task = task.NewTask(config, "controller").
		WithWorkerPool(config.Syncer.NumWorkers, config.Syncer.WorkerQueueSize)

	monitor := monitoring.NewMonitor().
		WithMaxHistorySize(30)

	client, err := eth.NewClient(config)
	if err != nil {
		return
	}

	db, err := model.NewConnection(self.Ctx, config, "syncer")
	if err != nil {
		return
	}

	store, err := kv.NewStore(config)
	if err != nil {
		return
	}

	transactions := cache.NewStore(db)

	self.syncer = NewSyncer(config).
		WithClient(client).
		WithStore(transactions).
		WithMonitor(monitor)

	tracked := tracker.NewTracker(config).
		WithClient(client).
		WithMonitor(monitor)

	gtw, err := gateway.NewGateway(config)
	if err != nil {
		return
	}
	gtw = gtw.
		WithChain(client).
		WithMonitor(monitor)

	transactionQueue := queue.NewManager(config).
		WithStore(store).
		WithSender(gtw).
		WithMonitor(monitor)

	sessions := sessionkey.NewModule(config).
		WithStore(store).
		WithSender(gtw)

	srv := server.NewServer(config).
		WithStore(transactions).
		WithTracker(tracked).
		WithQueue(transactionQueue).
		WithSessions(sessions).
		WithMonitor(monitor)

	self.Task = self.Task.
		WithSubtask(monitor.Task).
		WithSubtask(tracked.Task).
		WithSubtask(srv.Task).
		WithOnBeforeStart(func() error {
			err := transactionQueue.Load(self.Ctx)
			if err != nil {
				return err
			}
			return sessions.Load(self.Ctx)
		}).
		WithPeriodicSubtaskFunc(config.Syncer.Interval, self.syncAccounts).
		WithOnAfterStop(func() {
			client.Close()
		})

	return
}

// syncAccounts runs one whole-range sync per configured account.
// Entries are formatted as <owner_id>=<address>.
func (self *Controller) syncAccounts() (err error) {
	for _, entry := range self.Config.Syncer.Accounts {
		owner, address, ok := strings.Cut(entry, "=")
		if !ok || owner == "" || address == "" {
			self.Log.WithField("entry", entry).Warn("Malformed account entry, skipping")
			continue
		}

		self.SubmitToWorker(func() {
			err := self.syncer.SyncForUser(self.Ctx, owner, address)
			if err != nil {
				self.Log.WithError(err).
					WithField("owner_id", owner).
					Error("Sync failed")
			}
		})
	}
	return nil
}
