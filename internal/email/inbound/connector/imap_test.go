package connector

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/stretchr/testify/require"

	"github.com/pharmeast/pharmeast-backend/internal/config"
)

func testIMAPConfig() config.IMAPConfig {
	return config.IMAPConfig{
		Enabled:  true,
		Host:     "mail.example",
		User:     "info@pharmeast.com",
		Password: "secret",
	}
}

func quietOpt() Option { return WithLogger(log.New(io.Discard, "", 0)) }

type recordingHandler struct {
	raws    [][]byte
	failOn  string
	failure error
}

func (h *recordingHandler) handle(_ context.Context, raw []byte) error {
	if h.failOn != "" && string(raw) == h.failOn {
		if h.failure != nil {
			return h.failure
		}
		return errors.New("handler failed")
	}
	h.raws = append(h.raws, raw)
	return nil
}

func TestFetcherFlagsUnseenAndRefetchesRecent(t *testing.T) {
	client := &fakeIMAPClient{
		unseenUIDs: []imap.UID{11, 12},
		recentUIDs: []imap.UID{11, 12, 13},
		bodies: map[imap.UID][]byte{
			11: []byte("first"),
			12: []byte("second"),
			13: []byte("older, already seen"),
		},
	}
	h := &recordingHandler{}
	f := NewFetcher(testIMAPConfig(), quietOpt(),
		withClientFactory(func() (imapClient, error) { return client, nil }))

	require.NoError(t, f.Fetch(context.Background(), h.handle))

	// Unseen messages handled once, flagged, and not re-handled by the
	// recent pass; UID 13 only appears in the recent pass.
	require.Equal(t, []imap.UID{11, 12}, client.storeUIDs)
	require.Equal(t, 1, client.storeCalls)
	require.Len(t, h.raws, 3)
	require.Equal(t, "older, already seen", string(h.raws[2]))
	require.Equal(t, 1, client.logoutCalls)
}

func TestFetcherRecentWindowUsesClock(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	client := &fakeIMAPClient{}
	f := NewFetcher(testIMAPConfig(), quietOpt(),
		WithClock(func() time.Time { return now }),
		withClientFactory(func() (imapClient, error) { return client, nil }))

	require.NoError(t, f.Fetch(context.Background(), (&recordingHandler{}).handle))
	require.Len(t, client.searchCriteria, 2)
	require.Equal(t, now.Add(-2*time.Hour), client.searchCriteria[1].Since)
}

func TestFetcherContinuesPastHandlerError(t *testing.T) {
	client := &fakeIMAPClient{
		unseenUIDs: []imap.UID{11, 12},
		bodies: map[imap.UID][]byte{
			11: []byte("poison"),
			12: []byte("fine"),
		},
	}
	h := &recordingHandler{failOn: "poison"}
	f := NewFetcher(testIMAPConfig(), quietOpt(),
		withClientFactory(func() (imapClient, error) { return client, nil }))

	require.NoError(t, f.Fetch(context.Background(), h.handle))
	require.Equal(t, [][]byte{[]byte("fine")}, h.raws)
	// Failed messages are still flagged; they are retried via the recent
	// window, not by staying unseen forever.
	require.Equal(t, []imap.UID{11, 12}, client.storeUIDs)
}

func TestFetcherEmptyMailboxNoError(t *testing.T) {
	client := &fakeIMAPClient{}
	f := NewFetcher(testIMAPConfig(), quietOpt(),
		withClientFactory(func() (imapClient, error) { return client, nil }))
	require.NoError(t, f.Fetch(context.Background(), (&recordingHandler{}).handle))
	require.Zero(t, client.storeCalls)
}

func TestFetcherRequiresHandlerAndConfig(t *testing.T) {
	f := NewFetcher(testIMAPConfig(), quietOpt())
	require.Error(t, f.Fetch(context.Background(), nil))

	f = NewFetcher(config.IMAPConfig{}, quietOpt())
	require.Error(t, f.Fetch(context.Background(), (&recordingHandler{}).handle))
}

func TestFetcherAuthAndSelectErrors(t *testing.T) {
	f := NewFetcher(testIMAPConfig(), quietOpt(), withClientFactory(func() (imapClient, error) {
		return &fakeIMAPClient{loginErr: errors.New("bad creds")}, nil
	}))
	err := f.Fetch(context.Background(), (&recordingHandler{}).handle)
	require.ErrorContains(t, err, "imap auth")

	f = NewFetcher(testIMAPConfig(), quietOpt(), withClientFactory(func() (imapClient, error) {
		return &fakeIMAPClient{selectErr: errors.New("no inbox")}, nil
	}))
	err = f.Fetch(context.Background(), (&recordingHandler{}).handle)
	require.ErrorContains(t, err, "imap select")
}

func TestFetcherConnectErrorWrapped(t *testing.T) {
	f := NewFetcher(testIMAPConfig(), quietOpt(), withClientFactory(func() (imapClient, error) {
		return nil, errors.New("dial failed")
	}))
	err := f.Fetch(context.Background(), (&recordingHandler{}).handle)
	require.ErrorContains(t, err, "imap connect")
}

type fakeIMAPClient struct {
	unseenUIDs []imap.UID
	recentUIDs []imap.UID
	bodies     map[imap.UID][]byte

	loginErr  error
	selectErr error
	searchErr error
	fetchErr  error
	storeErr  error
	logoutErr error

	searchCalls    int
	searchCriteria []*imap.SearchCriteria
	lastFetchSet   imap.NumSet
	storeUIDs      []imap.UID
	storeCalls     int
	logoutCalls    int
	closed         bool
}

func (c *fakeIMAPClient) Login(_, _ string) commandWaiter { return &fakeCommand{err: c.loginErr} }
func (c *fakeIMAPClient) Logout() commandWaiter {
	c.logoutCalls++
	return &fakeCommand{err: c.logoutErr}
}
func (c *fakeIMAPClient) Close() error { c.closed = true; return nil }
func (c *fakeIMAPClient) Select(_ string, _ *imap.SelectOptions) selectWaiter {
	return &fakeSelect{err: c.selectErr}
}
func (c *fakeIMAPClient) UIDSearch(criteria *imap.SearchCriteria, _ *imap.SearchOptions) searchWaiter {
	c.searchCalls++
	c.searchCriteria = append(c.searchCriteria, criteria)
	uids := c.unseenUIDs
	if c.searchCalls > 1 {
		uids = c.recentUIDs
	}
	data := &imap.SearchData{All: imap.UIDSetNum(uids...)}
	return &fakeSearch{err: c.searchErr, data: data}
}
func (c *fakeIMAPClient) Fetch(numSet imap.NumSet, _ *imap.FetchOptions) fetchWaiter {
	c.lastFetchSet = numSet
	var bufs []*imapclient.FetchMessageBuffer
	if c.fetchErr == nil {
		set, _ := numSet.(imap.UIDSet)
		for uid, body := range c.bodies {
			if !set.Contains(uid) {
				continue
			}
			bufs = append(bufs, &imapclient.FetchMessageBuffer{
				SeqNum: uint32(uid),
				UID:    uid,
				BodySection: []imapclient.FetchBodySectionBuffer{{
					Section: &imap.FetchItemBodySection{},
					Bytes:   append([]byte(nil), body...),
				}},
			})
		}
	}
	return &fakeFetch{err: c.fetchErr, bufs: bufs}
}
func (c *fakeIMAPClient) Store(numSet imap.NumSet, store *imap.StoreFlags, _ *imap.StoreOptions) fetchWaiter {
	c.storeCalls++
	if store != nil {
		if set, ok := numSet.(imap.UIDSet); ok {
			for _, r := range set {
				for uid := r.Start; uid <= r.Stop; uid++ {
					c.storeUIDs = append(c.storeUIDs, uid)
				}
			}
		}
	}
	return &fakeFetch{err: c.storeErr}
}

type fakeCommand struct{ err error }

func (c *fakeCommand) Wait() error { return c.err }

type fakeSelect struct{ err error }

func (s *fakeSelect) Wait() (*imap.SelectData, error) { return nil, s.err }

type fakeSearch struct {
	err  error
	data *imap.SearchData
}

func (s *fakeSearch) Wait() (*imap.SearchData, error) { return s.data, s.err }

type fakeFetch struct {
	err  error
	bufs []*imapclient.FetchMessageBuffer
}

func (f *fakeFetch) Collect() ([]*imapclient.FetchMessageBuffer, error) { return f.bufs, f.err }
func (f *fakeFetch) Close() error                                       { return f.err }
