package core

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const HeadChanMaxSize = 100

// retry settings for reaching the node, a var so tests can shorten it
var (
	headRetryLimit   uint = 5
	headRetryBackoff      = 2 * time.Second
)

// HeadClient is the part of ethclient.Client the chain clock needs.
type HeadClient interface {
	BlockNumber(ctx context.Context) (uint64, error)

	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// ChainClock reads blocks from an ethereum node. The head only moves forward, a
// reorg to a lower number is ignored.
type ChainClock struct {
	ctx    context.Context
	cancel context.CancelFunc
	client HeadClient
	logger logrus.FieldLogger

	head   atomic.Uint64
	headCh chan *types.Header
	sub    ethereum.Subscription
	feed   event.Feed
	wg     sync.WaitGroup
}

var _ Clock = (*ChainClock)(nil)

// NewChainClock fetches the current head, retrying while the node is unreachable.
func NewChainClock(ctx context.Context, client HeadClient, logger logrus.FieldLogger) (*ChainClock, error) {
	number, err := FetchHead(ctx, client, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &ChainClock{
		ctx:    ctx,
		cancel: cancel,
		client: client,
		logger: logger,
		headCh: make(chan *types.Header, HeadChanMaxSize),
	}
	c.head.Store(number)
	return c, nil
}

// FetchHead returns the node's latest block number.
func FetchHead(ctx context.Context, client HeadClient, logger logrus.FieldLogger) (uint64, error) {
	var number uint64
	action := func(attempt uint) error {
		n, err := client.BlockNumber(ctx)
		if err != nil {
			logger.Warnf("fetch head block (attempt %d): %s", attempt, err)
			return err
		}
		number = n
		return nil
	}

	if err := retry.Retry(action, strategy.Limit(headRetryLimit), strategy.Backoff(backoff.Fibonacci(headRetryBackoff))); err != nil {
		return 0, err
	}
	return number, nil
}

// Start subscribes to new heads and keeps Now current until Stop.
func (c *ChainClock) Start() error {
	if err := c.subscribe(); err != nil {
		return err
	}

	c.wg.Add(1)
	go c.listenHeads()
	return nil
}

func (c *ChainClock) subscribe() error {
	action := func(attempt uint) error {
		sub, err := c.client.SubscribeNewHead(c.ctx, c.headCh)
		if err != nil {
			c.logger.Warnf("subscribe new head (attempt %d): %s", attempt, err)
			return err
		}
		c.sub = sub
		return nil
	}
	return retry.Retry(action, strategy.Limit(headRetryLimit), strategy.Backoff(backoff.Fibonacci(headRetryBackoff)))
}

func (c *ChainClock) listenHeads() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case err, ok := <-c.sub.Err():
			if !ok || c.ctx.Err() != nil {
				return
			}
			c.logger.Errorf("head subscription dropped: %s", err)
			dropped := c.sub
			err = c.subscribe()
			dropped.Unsubscribe()
			if err != nil {
				c.logger.Errorf("resubscribe new head failed: %s", err)
				return
			}
		case header := <-c.headCh:
			if header == nil || header.Number == nil {
				continue
			}
			c.advance(header.Number.Uint64())
		}
	}
}

func (c *ChainClock) advance(number uint64) {
	for {
		cur := c.head.Load()
		if number <= cur {
			return
		}
		if c.head.CompareAndSwap(cur, number) {
			break
		}
	}
	c.logger.Debugf("new head: %d", number)
	c.feed.Send(number)
}

func (c *ChainClock) Now() uint64 {
	return c.head.Load()
}

// SubscribeHeads delivers every block number the clock advances to.
func (c *ChainClock) SubscribeHeads(ch chan<- uint64) event.Subscription {
	return c.feed.Subscribe(ch)
}

func (c *ChainClock) Stop() {
	c.cancel()
	c.wg.Wait()
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
}

var _ HeadClient = (*MockClient)(nil)

// MockClient is an in-process chain: Mine produces new heads.
type MockClient struct {
	mu       sync.Mutex
	number   uint64
	failures int
	subs     []*MockSubscription
}

func NewMockClient(number uint64) *MockClient {
	return &MockClient{number: number}
}

// FailNext makes the next n BlockNumber calls fail.
func (mc *MockClient) FailNext(n int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.failures = n
}

func (mc *MockClient) BlockNumber(ctx context.Context) (uint64, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.failures > 0 {
		mc.failures--
		return 0, errors.New("mock node unavailable")
	}
	return mc.number, nil
}

func (mc *MockClient) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	sub := &MockSubscription{headCh: ch, errCh: make(chan error, 1)}
	mc.subs = append(mc.subs, sub)
	return sub, nil
}

// Mine advances the chain by n blocks and publishes the new head.
func (mc *MockClient) Mine(n uint64) uint64 {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.number += n
	header := &types.Header{Number: new(big.Int).SetUint64(mc.number)}
	for _, sub := range mc.subs {
		sub.send(header)
	}
	return mc.number
}

// Drop fails every open subscription with err, like a node closing the connection.
// It returns the dropped subscriptions.
func (mc *MockClient) Drop(err error) []*MockSubscription {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	dropped := mc.subs
	mc.subs = nil
	for _, sub := range dropped {
		sub.fail(err)
	}
	return dropped
}

type MockSubscription struct {
	mu       sync.Mutex
	headCh   chan<- *types.Header
	errCh    chan error
	failed   bool
	unsubbed bool
}

func (ms *MockSubscription) send(header *types.Header) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.failed || ms.unsubbed {
		return
	}
	select {
	case ms.headCh <- header:
	default:
	}
}

func (ms *MockSubscription) fail(err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.failed || ms.unsubbed {
		return
	}
	ms.failed = true
	ms.errCh <- err
}

func (ms *MockSubscription) Unsubscribe() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if !ms.unsubbed {
		ms.unsubbed = true
		close(ms.errCh)
	}
}

// Unsubscribed reports whether Unsubscribe was called.
func (ms *MockSubscription) Unsubscribed() bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.unsubbed
}

func (ms *MockSubscription) Err() <-chan error {
	return ms.errCh
}
