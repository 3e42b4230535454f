/*
NAME
  iptv.go

DESCRIPTION
  iptv.go provides fetching and parsing of M3U playlists into IPTV channel
  maps for scanning.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package iptv fetches and parses M3U playlists of IPTV channels.
package iptv

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/ausocean/dtvscan/dtv"
	"github.com/ausocean/utils/logging"
)

// Playlist markers.
const (
	header    = "#EXTM3U"
	extInf    = "#EXTINF:"
	vlcOpt    = "#EXTVLCOPT:"
	mythOpt   = "#EXTMYTHTV:"
	chnoAttr  = "tvg-chno="
	programKV = "program="
	bitrateKV = "bitrate="
)

// Fetch defaults.
const (
	DefaultRetries = 3
	DefaultWaitMax = 5 * time.Second
)

// ErrNoHeader is returned by Parse for input lacking the M3U header.
var ErrNoHeader = errors.New("not an M3U playlist")

// Fetch downloads the playlist at url, retrying transient failures, and
// parses it.
func Fetch(ctx context.Context, l logging.Logger, url string) (map[string]dtv.IPTVChannel, error) {
	c := retryablehttp.NewClient()
	c.RetryMax = DefaultRetries
	c.RetryWaitMax = DefaultWaitMax
	c.Logger = leveled{l}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not create request")
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "could not fetch %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("could not fetch %s: %s", url, resp.Status)
	}
	return Parse(resp.Body)
}

// Parse reads an M3U playlist. Channels are keyed by their channel number,
// taken from a tvg-chno attribute or a "<number> - <name>" title, or
// numbered in playlist order when neither is given.
func Parse(r io.Reader) (map[string]dtv.IPTVChannel, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, errors.Wrap(err, "could not read playlist")
		}
		return nil, ErrNoHeader
	}
	if !strings.HasPrefix(strings.TrimPrefix(sc.Text(), "\uFEFF"), header) {
		return nil, ErrNoHeader
	}

	var (
		chans = make(map[string]dtv.IPTVChannel)
		cur   dtv.IPTVChannel
		num   string
		open  bool
		seq   int
	)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, extInf):
			cur, open = dtv.IPTVChannel{}, true
			num, cur.Name = parseInf(strings.TrimPrefix(line, extInf))
		case strings.HasPrefix(line, vlcOpt):
			if v, ok := value(line, programKV); ok {
				if n, err := strconv.ParseUint(v, 10, 16); err == nil {
					cur.ProgramNumber = uint16(n)
				}
			}
		case strings.HasPrefix(line, mythOpt):
			if v, ok := value(line, bitrateKV); ok {
				if n, err := strconv.ParseUint(v, 10, 64); err == nil {
					cur.Tuning.Bitrate = n
				}
			}
		case strings.HasPrefix(line, "#"):
		default:
			if !open {
				continue
			}
			seq++
			if num == "" {
				num = strconv.Itoa(seq)
			}
			cur.Tuning.DataURL = line
			chans[num] = cur
			open = false
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "could not read playlist")
	}
	return chans, nil
}

// parseInf splits the remainder of an EXTINF line into channel number and
// name.
func parseInf(s string) (num, name string) {
	attrs := s
	if i := strings.LastIndex(s, ","); i >= 0 {
		attrs, name = s[:i], strings.TrimSpace(s[i+1:])
	}
	if i := strings.Index(attrs, chnoAttr); i >= 0 {
		if f := strings.Fields(attrs[i+len(chnoAttr):]); len(f) != 0 {
			num = strings.Trim(f[0], `"`)
		}
	}
	if num == "" {
		if i := strings.Index(name, " - "); i > 0 {
			if _, err := strconv.ParseFloat(strings.Replace(name[:i], "_", ".", 1), 64); err == nil {
				num, name = name[:i], name[i+3:]
			}
		}
	}
	return num, name
}

// value returns the value of key in a comma separated option line.
func value(line, key string) (string, bool) {
	line = line[strings.Index(line, ":")+1:]
	for _, kv := range strings.Split(line, ",") {
		kv = strings.TrimSpace(kv)
		if strings.HasPrefix(kv, key) {
			return strings.TrimPrefix(kv, key), true
		}
	}
	return "", false
}

// leveled adapts a logging.Logger to retryablehttp's leveled logger.
type leveled struct{ l logging.Logger }

func (a leveled) Error(msg string, kv ...interface{}) { a.l.Error(msg, kv...) }
func (a leveled) Info(msg string, kv ...interface{})  { a.l.Info(msg, kv...) }
func (a leveled) Debug(msg string, kv ...interface{}) { a.l.Debug(msg, kv...) }
func (a leveled) Warn(msg string, kv ...interface{})  { a.l.Warning(msg, kv...) }
