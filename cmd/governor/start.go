package main

import (
	"fmt"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"

	"github.com/axiomesh/governor"
	"github.com/axiomesh/governor/core"
	"github.com/axiomesh/governor/repo"
)

type daemon struct {
	client  *ethclient.Client
	clock   *core.ChainClock
	watcher *core.Watcher
}

func (d *daemon) Stop() error {
	d.watcher.Stop()
	d.clock.Stop()
	d.client.Close()
	return nil
}

func start(ctx *cli.Context) error {
	p, err := getRootPath(ctx)
	if err != nil {
		return err
	}
	r, err := repo.Load(p)
	if err != nil {
		return err
	}
	if err := r.EnsureDirs(); err != nil {
		return err
	}

	err = log.Initialize(
		log.WithReportCaller(r.Config.Log.ReportCaller),
		log.WithPersist(true),
		log.WithFilePath(r.LogsPath()),
		log.WithFileName(r.Config.Log.Filename),
		log.WithMaxAge(r.Config.Log.MaxAge),
		log.WithRotationTime(r.Config.Log.RotationTime),
	)
	if err != nil {
		return fmt.Errorf("log initialize: %w", err)
	}

	printVersion()

	logger := log.New()
	logger.SetLevel(log.ParseLevel(r.Config.Log.Level))

	cfg, err := r.Config.GovernorConfig()
	if err != nil {
		return err
	}

	client, err := ethclient.DialContext(ctx.Context, r.Config.DialUrl)
	if err != nil {
		return err
	}

	clock, err := core.NewChainClock(ctx.Context, client, logger.WithField("module", "clock"))
	if err != nil {
		client.Close()
		return fmt.Errorf("new chain clock error: %w", err)
	}

	// the store is only held while a head is processed, one-shot commands use it in between
	opener := core.StorageOpener(r.StoragePath(), cfg, clock, newActionRegistry(r), logger.WithField("module", "governor"))
	_, release, err := opener()
	if err != nil {
		client.Close()
		return fmt.Errorf("new governor error: %w", err)
	}
	release()

	if err := clock.Start(); err != nil {
		clock.Stop()
		client.Close()
		return fmt.Errorf("start chain clock failed: %w", err)
	}
	watcher := core.NewWatcher(ctx.Context, opener, r.Config.Watch.AutoExecute, logger.WithField("module", "watcher"))
	watcher.Start(clock)

	var wg sync.WaitGroup
	wg.Add(1)
	handleShutdown(&daemon{client: client, clock: clock, watcher: watcher}, &wg)

	fmt.Printf("=============Governor is ready at block %d=============\n", clock.Now())

	wg.Wait()

	return nil
}

func printVersion() {
	fmt.Printf("Governor version: %s-%s-%s\n", governor.CurrentVersion, governor.CurrentBranch, governor.CurrentCommit)
	fmt.Printf("App build date: %s\n", governor.BuildDate)
	fmt.Printf("System version: %s\n", governor.Platform)
	fmt.Printf("Golang version: %s\n", governor.GoVersion)
	fmt.Println()
}

func handleShutdown(node *daemon, wg *sync.WaitGroup) {
	var stop = make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGTERM)
	signal.Notify(stop, syscall.SIGINT)

	go func() {
		<-stop
		fmt.Println("received interrupt signal, shutting down...")
		if err := node.Stop(); err != nil {
			panic(err)
		}
		wg.Done()
		os.Exit(0)
	}()
}
