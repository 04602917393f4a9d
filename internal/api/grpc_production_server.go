package api

import (
	"context"
	"time"

	"mfgcore/server/internal/services"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ProductionServiceName = "mfgcore.v1.ProductionService"

// ProductionServiceServer - gRPC сервис производства. Запросы и ответы - google.protobuf.Struct
// с теми же полями, что и в HTTP API.
type ProductionServiceServer interface {
	ResolveRequirement(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SelectFEFO(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CommitBatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TraceRecall(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structMethod func(ProductionServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func structHandler(name string, call structMethod) grpc.MethodDesc {
	fullMethod := "/" + ProductionServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ProductionServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(ProductionServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ProductionServiceDesc описывает сервис для grpc.Server.RegisterService
var ProductionServiceDesc = grpc.ServiceDesc{
	ServiceName: ProductionServiceName,
	HandlerType: (*ProductionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		structHandler("ResolveRequirement", ProductionServiceServer.ResolveRequirement),
		structHandler("SelectFEFO", ProductionServiceServer.SelectFEFO),
		structHandler("CommitBatch", ProductionServiceServer.CommitBatch),
		structHandler("TraceRecall", ProductionServiceServer.TraceRecall),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mfgcore/v1/production.proto",
}

// RegisterProductionServiceServer регистрирует реализацию на gRPC сервере
func RegisterProductionServiceServer(s grpc.ServiceRegistrar, srv ProductionServiceServer) {
	s.RegisterService(&ProductionServiceDesc, srv)
}

// ProductionGRPCServer реализует ProductionServiceServer поверх сервисов ядра
type ProductionGRPCServer struct {
	svc Services
}

// NewProductionGRPCServer создает gRPC сервер производства
func NewProductionGRPCServer(svc Services) *ProductionGRPCServer {
	return &ProductionGRPCServer{svc: svc}
}

type grpcRequirementRequest struct {
	RecipeID uint `json:"recipe_id"`
	Units    int  `json:"units"`
}

type grpcSelectRequest struct {
	RecipeID     uint   `json:"recipe_id"`
	Units        int    `json:"units"`
	SessionToken string `json:"session_token"`
}

type grpcCommitRequest struct {
	SessionToken   string `json:"session_token"`
	RecipeID       uint   `json:"recipe_id"`
	Units          int    `json:"units"`
	ManufacturerID string `json:"manufacturer_id"`
}

type grpcRecallRequest struct {
	IngredientID string `json:"ingredient_id"`
	LotNumber    string `json:"lot_number"`
	WindowDays   *int   `json:"window_days"`
}

func decodeRequest(in *structpb.Struct, v interface{}) error {
	if err := fromStruct(in, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "неверный запрос: %v", err)
	}
	return nil
}

func encodeResponse(v interface{}) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "ошибка кодирования ответа: %v", err)
	}
	return out, nil
}

// ResolveRequirement возвращает потребность в ингредиентах
func (s *ProductionGRPCServer) ResolveRequirement(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req grpcRequirementRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	reqs, err := s.svc.Requirements.ResolveRequirement(ctx, req.RecipeID, req.Units)
	if err != nil {
		return nil, grpcError(err)
	}
	return encodeResponse(map[string]interface{}{"requirements": reqs})
}

// SelectFEFO подбирает лоты в черновик. Без session_token открывается новая сессия.
func (s *ProductionGRPCServer) SelectFEFO(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req grpcSelectRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if req.SessionToken == "" {
		req.SessionToken = s.svc.Staging.NewSession()
	}
	result, err := s.svc.FEFO.SelectFEFO(ctx, req.RecipeID, req.Units, req.SessionToken)
	if err != nil {
		return nil, grpcError(err)
	}
	return encodeResponse(result)
}

// CommitBatch коммитит черновик сессии в партию
func (s *ProductionGRPCServer) CommitBatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req grpcCommitRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	result, err := s.svc.Batches.CommitBatch(ctx, services.CommitRequest{
		SessionToken:   req.SessionToken,
		RecipeID:       req.RecipeID,
		Units:          req.Units,
		ManufacturerID: req.ManufacturerID,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	return encodeResponse(result)
}

// TraceRecall возвращает строки отзыва и сводку
func (s *ProductionGRPCServer) TraceRecall(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req grpcRecallRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	rows, err := s.svc.Recall.TraceRecall(ctx, services.RecallQuery{
		IngredientID: req.IngredientID,
		LotNumber:    req.LotNumber,
		WindowDays:   req.WindowDays,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	return encodeResponse(map[string]interface{}{
		"rows":    rows,
		"summary": services.SummarizeRecall(rows),
	})
}

var grpcCodeByKind = map[services.ErrorKind]codes.Code{
	services.KindInvalidRecipe:         codes.InvalidArgument,
	services.KindInvalidQuantity:       codes.InvalidArgument,
	services.KindInvalidTraceTarget:    codes.InvalidArgument,
	services.KindNotFound:              codes.NotFound,
	services.KindNoAvailableLots:       codes.FailedPrecondition,
	services.KindInsufficientStock:     codes.FailedPrecondition,
	services.KindStagingMismatch:       codes.FailedPrecondition,
	services.KindConcurrentStockChange: codes.Aborted,
	services.KindLotNumberConflict:     codes.AlreadyExists,
	services.KindStorageFailure:        codes.Internal,
}

// grpcError переводит ошибку ядра в gRPC статус, сохраняя категорию в тексте
func grpcError(err error) error {
	code, ok := grpcCodeByKind[services.KindOf(err)]
	if !ok {
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// UnaryLoggingInterceptor логирует вызовы gRPC
func UnaryLoggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	event := log.Info()
	if err != nil {
		event = log.Warn().Err(err)
	}
	event.Str("method", info.FullMethod).
		Str("code", status.Code(err).String()).
		Dur("latency", time.Since(start)).
		Msg("📡 gRPC вызов")
	return resp, err
}
