package extraction

import (
	"bytes"
	"context"
	"net/http"

	"github.com/livepeer/m3u8"
)

// validatePlaylist fetches a directly-playable HLS URL and checks that it
// parses as a master or media playlist. Proxied streams skip this: the proxy
// rewrites the manifest on the way through anyway, and origins that require
// forged headers would reject this probe.
func validatePlaylist(ctx context.Context, hops *hopClient, playlistURL string) error {
	resp, err := hops.get(ctx, playlistURL, "")
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK {
		return E(KindOriginFailure, "playlist fetch failed").WithDebug("status", resp.Status)
	}

	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(resp.Body), true)
	if err != nil {
		return Wrap(KindOriginFailure, "playlist did not parse", err)
	}

	switch listType {
	case m3u8.MASTER:
		if master, ok := playlist.(*m3u8.MasterPlaylist); ok && len(master.Variants) == 0 {
			return E(KindOriginFailure, "master playlist has no variants")
		}
	case m3u8.MEDIA:
		if media, ok := playlist.(*m3u8.MediaPlaylist); ok && media.Count() == 0 {
			return E(KindOriginFailure, "media playlist has no segments")
		}
	}
	return nil
}
