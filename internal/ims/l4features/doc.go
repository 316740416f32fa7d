// Package l4features owns Layer 4 (Features) of the ion-mobility data
// model.
//
// Responsibilities: rows, features and feature lists (the result
// collection), the ion mobilogram time series attached to expanded
// features, and mobilogram binning.
// Key types: FeatureList, Row, Feature, IonMobilogramTimeSeries, Binner.
//
// Dependency rule: L4 may depend on L1-L3, but never on pipeline.
// No SQL/database code is allowed in this package.
package l4features
