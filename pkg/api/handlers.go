package api

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ssargent/framewire/pkg/channel"
	"github.com/ssargent/framewire/pkg/store"
	"github.com/ssargent/framewire/pkg/telem"
)

// handleHealth godoc
//
//	@Summary		Health check
//	@Description	Get the health status of the API
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Router			/health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, map[string]string{"status": "healthy"})
}

// handleCreateChannel godoc
//
//	@Summary		Create a channel
//	@Description	Define a channel that writers can open and streamers can subscribe to
//	@Tags			channels
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateChannelRequest	true	"Channel"
//	@Success		201		{object}	channel.Channel
//	@Failure		400		{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/channels [post]
func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid JSON in request body", http.StatusBadRequest)
		return
	}

	ch := channel.Channel{
		Key:       req.Key,
		Name:      req.Name,
		DataType:  req.DataType,
		CreatedAt: telem.Now(),
	}
	if err := s.channels.Create(r.Context(), &ch); err != nil {
		if errors.Is(err, channel.ErrInvalid) {
			sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("create channel", zap.Error(err))
		sendError(w, "Failed to create channel", http.StatusInternalServerError)
		return
	}

	sendCreated(w, ch)
}

// handleListChannels godoc
//
//	@Summary	List channels
//	@Tags		channels
//	@Produce	json
//	@Success	200	{array}	channel.Channel
//	@Security	ApiKeyAuth
//	@Router		/channels [get]
func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.channels.List(r.Context())
	if err != nil {
		s.logger.Error("list channels", zap.Error(err))
		sendError(w, "Failed to list channels", http.StatusInternalServerError)
		return
	}
	if channels == nil {
		channels = []channel.Channel{}
	}
	sendSuccess(w, channels)
}

// handleGetChannel godoc
//
//	@Summary	Get a channel
//	@Tags		channels
//	@Produce	json
//	@Param		key	path		int	true	"Channel key"
//	@Success	200	{object}	channel.Channel
//	@Failure	404	{object}	APIResponse
//	@Security	ApiKeyAuth
//	@Router		/channels/{key} [get]
func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	key, ok := channelKeyParam(w, r)
	if !ok {
		return
	}
	ch, err := s.channels.Retrieve(r.Context(), key)
	if err != nil {
		s.sendChannelError(w, err)
		return
	}
	sendSuccess(w, ch)
}

// handleDeleteChannel godoc
//
//	@Summary	Delete a channel
//	@Tags		channels
//	@Produce	json
//	@Param		key	path		int	true	"Channel key"
//	@Success	200	{object}	map[string]string
//	@Security	ApiKeyAuth
//	@Router		/channels/{key} [delete]
func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	key, ok := channelKeyParam(w, r)
	if !ok {
		return
	}
	if err := s.channels.Delete(r.Context(), key); err != nil {
		s.logger.Error("delete channel", zap.Stringer("key", key), zap.Error(err))
		sendError(w, "Failed to delete channel", http.StatusInternalServerError)
		return
	}
	sendSuccess(w, map[string]string{"status": "deleted", "key": key.String()})
}

// handleLatest godoc
//
//	@Summary		Latest series
//	@Description	Get the most recent series written to a channel
//	@Tags			channels
//	@Produce		json
//	@Param			key	path		int	true	"Channel key"
//	@Success		200	{object}	SeriesResponse
//	@Failure		404	{object}	APIResponse
//	@Security		ApiKeyAuth
//	@Router			/channels/{key}/latest [get]
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	key, ok := channelKeyParam(w, r)
	if !ok {
		return
	}
	series, err := s.store.Latest(key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendError(w, "No data written to channel", http.StatusNotFound)
			return
		}
		s.logger.Error("read latest series", zap.Stringer("key", key), zap.Error(err))
		sendError(w, "Failed to read latest series", http.StatusInternalServerError)
		return
	}
	sendSuccess(w, SeriesResponse{
		Key:       key,
		DataType:  series.DataType,
		TimeRange: series.TimeRange,
		Alignment: series.Alignment,
		Samples:   series.Len(),
		Data:      series.Data,
	})
}

// handleStats godoc
//
//	@Summary	Series store statistics
//	@Tags		diagnostics
//	@Produce	json
//	@Success	200	{object}	store.Stats
//	@Security	ApiKeyAuth
//	@Router		/stats [get]
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.store.Stats()
	s.metrics.UpdateStoreStats(stats)
	sendSuccess(w, stats)
}

func channelKeyParam(w http.ResponseWriter, r *http.Request) (channel.Key, bool) {
	key, err := channel.ParseKey(chi.URLParam(r, "key"))
	if err != nil {
		sendError(w, "Invalid channel key", http.StatusBadRequest)
		return 0, false
	}
	return key, true
}

func (s *Server) sendChannelError(w http.ResponseWriter, err error) {
	if errors.Is(err, channel.ErrNotFound) {
		sendError(w, "Channel not found", http.StatusNotFound)
		return
	}
	s.logger.Error("retrieve channel", zap.Error(err))
	sendError(w, "Failed to retrieve channel", http.StatusInternalServerError)
}
