// Command rqjobsd wires a queue namespace's store, producer, worker(s),
// reaper and optional HTTP control surface into a running process.
//
// Grounded on the original Flask-based controller's argparse subcommands
// (_examples/original_source/controller/app.py): post, test_consumer,
// test_producer, test_reaper, test_all, clear_all, plus a --server flag
// to also run the HTTP control surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"github.com/avarga/rqjobs"
	"github.com/avarga/rqjobs/job"
	"github.com/avarga/rqjobs/rqhttp"
	"github.com/avarga/rqjobs/store"
)

type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	var (
		redisAddr string
		namespace string
		callback  string
		functions stringList
		runServer bool
		addr      string
	)
	flag.StringVar(&redisAddr, "redis", "localhost:6379", "address of the Redis backend")
	flag.StringVar(&namespace, "namespace", "rqjobs_default", "namespace of the queue")
	flag.StringVar(&callback, "callback", "", "URL to call back when a posted job completes")
	flag.Var(&functions, "function", "handler name to target for a posted job (repeatable)")
	flag.BoolVar(&runServer, "server", false, "also run the HTTP control surface")
	flag.StringVar(&addr, "addr", ":5001", "address for the HTTP control surface")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: rqjobsd [flags] <post|test_consumer|test_producer|test_reaper|test_all|clear_all> [message]")
		os.Exit(2)
	}
	command := flag.Arg(0)

	s := store.NewRedisStore(goredis.NewClient(&goredis.Options{Addr: redisAddr}))
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	producer := rqjobs.NewProducer(s, namespace)
	worker := rqjobs.NewWorker(s, namespace, "", rqjobs.WorkerConfig{Callback: rqjobs.DefaultCallbackConfig()}, log)
	reaper := rqjobs.NewReaper(s, namespace, rqjobs.ReaperConfig{
		Period:     5 * time.Second,
		JobTimeout: 60 * time.Second,
		MaxRetries: 3,
	}, log)

	switch command {
	case "clear_all":
		clearAll(ctx, s, namespace, log)
		return
	case "post":
		msg := flag.Arg(1)
		var cb *string
		if callback != "" {
			cb = &callback
		}
		id, err := producer.Post(ctx, msg, cb, []string(functions))
		if err != nil {
			log.Error("post failed", "err", err)
			os.Exit(1)
		}
		fmt.Println(id)
		return
	case "test_consumer":
		registerTestHandlers(worker)
		mustStart(log, "worker", worker.Start(ctx))
	case "test_producer":
		go testProducerLoop(ctx, producer, log)
	case "test_reaper":
		mustStart(log, "reaper", reaper.Start(ctx))
	case "test_all":
		registerTestHandlers(worker)
		mustStart(log, "worker", worker.Start(ctx))
		mustStart(log, "reaper", reaper.Start(ctx))
		go testProducerLoop(ctx, producer, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		os.Exit(2)
	}

	if runServer {
		go runHTTPServer(ctx, s, namespace, producer, &worker.Registry, addr, log)
	}

	<-ctx.Done()
	log.Info("shutting down")
	_ = worker.Stop(5 * time.Second)
	_ = reaper.Stop(5 * time.Second)
}

func mustStart(log *slog.Logger, name string, err error) {
	if err != nil {
		log.Error("start failed", "component", name, "err", err)
		os.Exit(1)
	}
}

// clearAll drains the namespace's known lists. The Store interface has
// no generic key-scan/delete (every operation it exposes maps onto a
// single fixed-purpose Redis command, per store.go), so this only
// empties the fixed-name lists, moving their elements onto a
// "<list>_discard" list each. Per-job progress keys (written with no
// expiry) and the id counter are left in place; the counter is not
// reset, so later posts get fresh ids.
func clearAll(ctx context.Context, s store.Store, namespace string, log *slog.Logger) {
	log.Info("clearing namespace", "namespace", namespace)
	keys := job.NewKeys(namespace)
	for _, key := range []string{keys.Pending(), keys.Processing(), keys.JobsRefs(), keys.DeadLetter()} {
		drainList(ctx, s, key, log)
	}
}

func drainList(ctx context.Context, s store.Store, key string, log *slog.Logger) {
	for {
		n, err := s.LLen(ctx, key)
		if err != nil {
			log.Error("clear_all: LLen failed", "key", key, "err", err)
			return
		}
		if n == 0 {
			return
		}
		if _, err := s.BRPopLPush(ctx, key, key+"_discard", 10*time.Millisecond); err != nil && err != store.ErrNil {
			log.Error("clear_all: drain failed", "key", key, "err", err)
			return
		}
	}
}

func registerTestHandlers(w *rqjobs.Worker) {
	w.Registry.CreateListener("simple_consumer_func", func(ctx context.Context, msg any, _ *rqjobs.Context) (any, error) {
		time.Sleep(1 * time.Second)
		s, _ := msg.(string)
		return s + " was processed", nil
	})
	w.Registry.CreateListener("my_consumer_func", func(ctx context.Context, msg any, utils *rqjobs.Context) (any, error) {
		dataKey, err := utils.StoreData(ctx, "some data to be stored", nil, 100*time.Second)
		if err != nil {
			return nil, err
		}
		if _, err := utils.FetchData(ctx, dataKey); err != nil {
			return nil, err
		}
		if err := utils.UpdateProgress(ctx, 56); err != nil {
			return nil, err
		}
		_, result, err := utils.PostAndBlock(ctx, "new message from within!", nil, []string{"simple_consumer_func"})
		if err != nil {
			return nil, err
		}
		return result, nil
	})
}

func testProducerLoop(ctx context.Context, p *rqjobs.Producer, log *slog.Logger) {
	ticker := time.NewTicker(4 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Post(ctx, "ZIG", nil, nil); err != nil {
				log.Error("test producer post failed", "err", err)
			}
		}
	}
}

func runHTTPServer(ctx context.Context, s store.Store, namespace string, p *rqjobs.Producer, reg *rqjobs.Registry, addr string, log *slog.Logger) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	rqhttp.New(s, namespace, p, reg).Routes(router)
	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("http control surface listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("http server failed", "err", err)
	}
}
