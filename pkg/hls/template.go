package hls

import (
	"strconv"
	"strings"
	"time"
)

// resolveTemplate applies the common [vhost]/[app]/[stream]/[seq]
// substitutions used by both the key-file path and (as a base step)
// the ts-file path.
func resolveTemplate(tpl, vhost, app, stream string, seq uint64) string {
	r := strings.NewReplacer(
		"[vhost]", vhost,
		"[app]", app,
		"[stream]", stream,
		"[seq]", strconv.FormatUint(seq, 10),
	)
	return r.Replace(tpl)
}

// resolveTSPath applies the ts_file substitutions in the exact order
// spec.md §4.2 requires:
//  1. [vhost] [app] [stream]
//  2. [timestamp] -> acceptFloorTs, only in floor mode
//  3. timestamp-token expansion ([hour] [minute] [second] ...)
//  4. [seq] -> sequence_no
//
// [duration] is substituted later, after close, by resolveDuration.
func resolveTSPath(tpl, vhost, app, stream string, floorMode bool, acceptFloorTs int64, now time.Time, seq uint64) string {
	out := strings.NewReplacer(
		"[vhost]", vhost,
		"[app]", app,
		"[stream]", stream,
	).Replace(tpl)

	if floorMode {
		out = strings.ReplaceAll(out, "[timestamp]", strconv.FormatInt(acceptFloorTs, 10))
	}

	out = strings.NewReplacer(
		"[year]", now.Format("2006"),
		"[month]", now.Format("01"),
		"[day]", now.Format("02"),
		"[hour]", now.Format("15"),
		"[minute]", now.Format("04"),
		"[second]", now.Format("05"),
	).Replace(out)

	out = strings.ReplaceAll(out, "[seq]", strconv.FormatUint(seq, 10))

	return out
}

// resolveDuration substitutes [duration] with the finalized segment's
// millisecond duration, applied to the already-resolved uri after
// segment_close accepts the segment.
func resolveDuration(resolved string, duration time.Duration) string {
	ms := duration.Milliseconds()
	return strings.ReplaceAll(resolved, "[duration]", strconv.FormatInt(ms, 10))
}

// playlistURI derives the playlist-relative uri from a full path: the
// m3u8 directory prefix is stripped and any leading slash trimmed. The
// m3u8 directory's basename is only inserted when entryPrefix is set and
// doesn't already end in "/" — with the default empty entryPrefix (ts
// file and m3u8 in the same directory), the uri is just the bare ts
// filename, per spec.md §4.2.
func playlistURI(fullPath, m3u8Dir, entryPrefix string) string {
	rel := strings.TrimPrefix(fullPath, m3u8Dir)
	rel = strings.TrimPrefix(rel, "/")

	var b strings.Builder
	b.WriteString(entryPrefix)
	if entryPrefix != "" && !strings.HasSuffix(entryPrefix, "/") {
		base := lastPathComponent(strings.TrimSuffix(m3u8Dir, "/"))
		if base != "" {
			b.WriteString(base)
			b.WriteString("/")
		}
	}
	b.WriteString(rel)
	return b.String()
}

func lastPathComponent(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return p
	}
	return p[i+1:]
}
