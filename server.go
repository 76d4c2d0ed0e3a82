package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/nfnt/resize"
	"golang.org/x/image/bmp"

	"github.com/pgavlin/inkframe/internal/display"
	"github.com/pgavlin/inkframe/internal/errscreen"
	"github.com/pgavlin/inkframe/internal/frame"
)

type server struct {
	logger  *log.Logger
	updater *updater
	url     string

	device display.Device

	m    sync.Mutex
	last *frame.Frame
}

// render runs the pipeline for the request's url parameter, or the configured url if there is none. A fallback frame
// is returned along with the failure; the frame is nil if there is no fallback.
func (s *server) render(req *http.Request) (*frame.Frame, error) {
	url := req.URL.Query().Get("url")
	if url == "" {
		url = s.url
	}
	if url == "" {
		return nil, fmt.Errorf("no image url")
	}

	f, err := s.updater.update(req.Context(), url, nil)
	if f != nil {
		s.m.Lock()
		s.last = f
		s.m.Unlock()
	}
	return f, err
}

// frame renders a frame for req, reporting failures to w. It returns nil if the response has already been written.
func (s *server) frame(w http.ResponseWriter, req *http.Request) *frame.Frame {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return nil
	}

	f, err := s.render(req)
	if err != nil {
		s.logger.Printf("error rendering frame: %v", err)
		w.Header().Set("X-Inkframe-Error", errscreen.Categorize(err).String())
		if f == nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return nil
		}
	}
	return f
}

func (s *server) handlePreviewPNG(w http.ResponseWriter, req *http.Request) {
	f := s.frame(w, req)
	if f == nil {
		return
	}

	pv := newPreview(f.Width, f.Height, s.updater.palette)
	if err := pv.Display(f); err != nil {
		s.logger.Printf("error rendering preview: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	var img image.Image = pv
	if v := req.URL.Query().Get("width"); v != "" {
		width, err := strconv.ParseUint(v, 10, 16)
		if err != nil || width == 0 {
			http.Error(w, fmt.Sprintf("invalid width %q", v), http.StatusBadRequest)
			return
		}
		img = resize.Thumbnail(uint(width), uint(width), img, resize.Bilinear)
	}

	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		s.logger.Printf("error encoding preview: %v", err)
	}
}

func (s *server) handlePreviewBMP(w http.ResponseWriter, req *http.Request) {
	f := s.frame(w, req)
	if f == nil {
		return
	}

	w.Header().Set("Content-Type", "image/bmp")
	if err := bmp.Encode(w, f.Paletted()); err != nil {
		s.logger.Printf("error encoding preview: %v", err)
	}
}

func (s *server) handleFrame(w http.ResponseWriter, req *http.Request) {
	f := s.frame(w, req)
	if f == nil {
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Pix)))
	if _, err := w.Write(f.Pix); err != nil {
		s.logger.Printf("error writing frame: %v", err)
	}
}

func (s *server) handleDisplay(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.device == nil {
		http.Error(w, "no display device is configured", http.StatusServiceUnavailable)
		return
	}

	s.m.Lock()
	f := s.last
	s.m.Unlock()
	if f == nil {
		http.Error(w, "nothing has been rendered yet", http.StatusConflict)
		return
	}

	if err := s.device.Display(f); err != nil {
		s.logger.Printf("error updating display: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if err := s.device.Sleep(); err != nil {
		s.logger.Printf("error putting display to sleep: %v", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/preview.png", s.handlePreviewPNG)
	mux.HandleFunc("/preview.bmp", s.handlePreviewBMP)
	mux.HandleFunc("/frame.bin", s.handleFrame)
	mux.HandleFunc("/display", s.handleDisplay)
	return mux
}

func serve(ctx context.Context, address string, s *server) error {
	srv := &http.Server{Addr: address, Handler: s.handler()}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	s.logger.Printf("serving on %v", address)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
